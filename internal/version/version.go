package version

import (
	"os/exec"
	"runtime/debug"
	"strings"
)

// Set through -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = "unknown"
	Date    = "unknown"
)

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func Current() Info {
	info := Info{Version: Resolve(), Commit: Commit, Date: Date}
	if info.Commit == "unknown" {
		if build, ok := debug.ReadBuildInfo(); ok {
			info.Commit, info.Date = fromBuildSettings(build.Settings, info.Commit, info.Date)
		}
	}
	return info
}

// Resolve returns the version, with a git describe suffix when running from a
// checkout that is not on a release tag.
func Resolve() string {
	return resolveVersion(Version, runGit)
}

func resolveVersion(base string, git func(...string) (string, error)) string {
	if base == "" {
		base = "0.0.0"
	}

	if suffix := gitSuffix(base, git); suffix != "" {
		return base + "-" + suffix
	}
	return base
}

func gitSuffix(base string, git func(...string) (string, error)) string {
	if _, err := git("rev-parse", "--git-dir"); err != nil {
		return ""
	}
	if _, err := git("describe", "--tags", "--exact-match"); err == nil {
		return ""
	}

	desc, err := git("describe", "--tags", "--dirty", "--always")
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(desc, "v"+base+"-")
}

func fromBuildSettings(settings []debug.BuildSetting, commit, date string) (string, string) {
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if len(setting.Value) > 12 {
				commit = setting.Value[:12]
			} else if setting.Value != "" {
				commit = setting.Value
			}
		case "vcs.time":
			if setting.Value != "" {
				date = setting.Value
			}
		}
	}
	return commit, date
}

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
