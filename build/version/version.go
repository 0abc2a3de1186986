// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package version provides information about confdb version and build configuration.
package version

import (
	"regexp"
	"runtime"
	runtimedebug "runtime/debug"
	"strconv"

	"github.com/FerretDB/confdb/internal/util/must"
)

// Info provides details about the current build.
//
//nolint:vet // for readability
type Info struct {
	Version          string
	Commit           string
	Dirty            bool
	BuildEnvironment map[string]string
}

// info singleton instance set by init().
var info *Info

// unknown is a placeholder for unknown version and commit values.
const unknown = "unknown"

// Module path from go.mod.
const module = "github.com/FerretDB/confdb"

// semVerTag is a https://semver.org/#is-there-a-suggested-regular-expression-regex-to-check-a-semver-string,
// but with a leading `v`.
//
//nolint:lll // for readability
var semVerTag = regexp.MustCompile(`^v(?P<major>0|[1-9]\d*)\.(?P<minor>0|[1-9]\d*)\.(?P<patch>0|[1-9]\d*)(?:-(?P<prerelease>(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+(?P<buildmetadata>[0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// Get returns current build's info.
//
// It returns a shared instance without any synchronization.
// If caller needs to modify the instance, it should make sure there is no concurrent accesses.
func Get() *Info {
	return info
}

// readBuildInfo fills info from the build info embedded into the binary.
//
// Module version is known only for `go install github.com/FerretDB/confdb/cmd/confdb@<version>` builds;
// builds in the repository have "(devel)" version, but VCS settings.
// For programs that import confdb as a library, only the dependency version is used;
// VCS settings refer to the other repository.
func readBuildInfo(buildInfo *runtimedebug.BuildInfo) {
	info.BuildEnvironment["go.version"] = buildInfo.GoVersion

	if buildInfo.Main.Path == module {
		if v := buildInfo.Main.Version; semVerTag.MatchString(v) {
			info.Version = v
		}

		for _, s := range buildInfo.Settings {
			if s.Value == "" {
				continue
			}

			info.BuildEnvironment[s.Key] = s.Value

			switch s.Key {
			case "vcs.revision":
				info.Commit = s.Value
			case "vcs.modified":
				info.Dirty = must.NotFail(strconv.ParseBool(s.Value))
			}
		}

		return
	}

	for _, dep := range buildInfo.Deps {
		if dep.Path != module {
			continue
		}

		v := dep.Version
		if dep.Replace != nil {
			v = dep.Replace.Version
		}

		if semVerTag.MatchString(v) {
			info.Version = v
		}

		return
	}
}

func init() {
	info = &Info{
		Version: unknown,
		Commit:  unknown,
		BuildEnvironment: map[string]string{
			"go.runtime": runtime.Version(),
		},
	}

	if buildInfo, ok := runtimedebug.ReadBuildInfo(); ok {
		readBuildInfo(buildInfo)
	}
}
