// Package build reports the version stamped into the binary at link time:
//
//	go build -ldflags "-X github.com/haivivi/agentkit/cmd/agentkit/internal/build.Version=v1.0.0 \
//	  -X github.com/haivivi/agentkit/cmd/agentkit/internal/build.Commit=$(git rev-parse --short HEAD)"
package build

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func Current() Info {
	return Info{
		Version:  Version,
		Commit:   Commit,
		Date:     Date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form printed by "agentkit version".
func String() string {
	i := Current()
	return fmt.Sprintf("agentkit %s (%s) built %s %s", i.Version, i.Commit, i.Date, i.Platform)
}
