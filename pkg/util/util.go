/*
Copyright 2025 David Arnold
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package util

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// SetupLogger sets configuration for the default logger
func SetupLogger() (err error) {
	var (
		lf = strings.ToLower(viper.GetString("output"))
		ll = viper.GetString("log-level")
	)

	// Set log format
	switch lf {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{
			DisableLevelTruncation: true,
		})
	}

	if ll != "" {
		lvl, err := log.ParseLevel(ll)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", ll, err)
		}
		log.SetLevel(lvl)
	}
	return nil
}

// ParseProviderID returns the cloud provider and associated info
func ParseProviderID(pi string) (cp string, id []string) {
	s := strings.SplitN(pi, ":", 2)
	if len(s) < 2 {
		return s[0], nil
	}
	return s[0], strings.Split(strings.TrimPrefix(s[1], "//"), "/")
}

// NodeIDFromProviderID converts a Kubernetes providerID such as
// "aws:///us-west-2a/i-0abc" into a provider type and a node id in
// "<location>/<native-id>" form ("aws", "us-west-2a/i-0abc").
func NodeIDFromProviderID(pi string) (cp string, nodeID string, err error) {
	cp, parts := ParseProviderID(pi)
	if cp == "" || len(parts) == 0 {
		return "", "", fmt.Errorf("malformed providerID %q", pi)
	}

	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "", "", fmt.Errorf("providerID %q has no node id", pi)
	}
	return cp, strings.Join(kept, "/"), nil
}
