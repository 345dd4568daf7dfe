//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
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
//
package pflagenv

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// ParseFlagSet fills every flag of fs that was not given on the command line
// from the environment variable envPrefix+NAME (uppercased, dashes become
// underscores). It must be called after fs.Parse.
// Returns the names of the flags that took their value from the environment.
func ParseFlagSet(fs *pflag.FlagSet, envPrefix string) ([]string, error) {
	var applied []string
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || err != nil {
			return
		}
		v, ok := os.LookupEnv(EnvName(f.Name, envPrefix))
		if !ok || v == "" {
			return
		}
		if serr := f.Value.Set(v); serr != nil {
			err = errors.Annotatef(serr, "invalid value %q for %s", v, EnvName(f.Name, envPrefix))
			return
		}
		f.Changed = true
		applied = append(applied, f.Name)
	})
	sort.Strings(applied)
	return applied, err
}

// The same as ParseFlagSet, but operates on a default FlagSet: pflag.CommandLine
func Parse(envPrefix string) ([]string, error) {
	return ParseFlagSet(pflag.CommandLine, envPrefix)
}

// EnvName returns the environment variable consulted for flagName.
func EnvName(flagName, envPrefix string) string {
	flagName = strings.ToUpper(flagName)
	flagName = strings.Replace(flagName, "-", "_", -1)
	return fmt.Sprint(envPrefix, flagName)
}
