package fingerprint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bwdedup/internal/policy"
	"github.com/roach88/bwdedup/internal/value"
)

// Derived key names. Each resolves to something computed from the item
// rather than a single path.
const (
	KeyDomain   = "domain"
	KeyURI      = "uri"
	KeyUsername = "username"
	KeyPassword = "password"
	KeyTOTP     = "totp"
	KeyName     = "name"
)

// DerivedKeys lists the bare names that are not treated as paths.
var DerivedKeys = []string{KeyDomain, KeyURI, KeyUsername, KeyPassword, KeyTOTP, KeyName}

type key struct {
	name    string
	resolve func(value.Value) value.Value
	// path is the object path the key reads; below reads the key names
	// inside the array elements at path, if any.
	path  value.Path
	below []string
}

func parseKey(name string) key {
	name = strings.TrimSpace(name)
	switch name {
	case KeyDomain:
		return uriKey(name, domains)
	case KeyURI:
		return uriKey(name, uris)
	case KeyUsername, KeyPassword, KeyTOTP:
		return pathKey(name, value.Path{"login", name})
	case KeyName:
		return pathKey(name, value.Path{"name"})
	default:
		return pathKey(name, value.ParsePath(name))
	}
}

func pathKey(name string, path value.Path) key {
	return key{name: name, path: path, resolve: func(item value.Value) value.Value {
		return value.Resolve(item, path)
	}}
}

func uriKey(name string, resolve func(value.Value) value.Value) key {
	return key{
		name:    name,
		resolve: resolve,
		path:    value.ParsePath(policy.URIsPath),
		below:   []string{"uri"},
	}
}

// CheckKeys rejects policy keys that the policy's own ignore rules strip
// from every item. Such a key resolves as absent everywhere and would
// collapse the whole input into one group. Errors wrap
// policy.ErrInvalidPolicy.
func CheckKeys(p policy.Policy) error {
	ignoredKeys := make(map[string]struct{}, len(p.IgnoreKeys))
	for _, k := range p.IgnoreKeys {
		ignoredKeys[k] = struct{}{}
	}
	ignoredPaths := make(map[string]struct{}, len(p.IgnorePaths))
	for _, raw := range p.IgnorePaths {
		if path := value.ParsePath(raw); len(path) > 0 {
			ignoredPaths[path.String()] = struct{}{}
		}
	}

	for i, name := range p.PolicyKeys {
		k := parseKey(name)
		for j, seg := range k.path {
			if _, ok := ignoredKeys[seg]; ok {
				return fmt.Errorf("%w: policy_keys[%d] %q reads %q, which ignore_keys removes", policy.ErrInvalidPolicy, i, name, seg)
			}
			prefix := k.path[:j+1].String()
			if _, ok := ignoredPaths[prefix]; ok {
				return fmt.Errorf("%w: policy_keys[%d] %q reads %q, which ignore_paths removes", policy.ErrInvalidPolicy, i, name, prefix)
			}
		}
		for _, seg := range k.below {
			if _, ok := ignoredKeys[seg]; ok {
				return fmt.Errorf("%w: policy_keys[%d] %q reads %q, which ignore_keys removes", policy.ErrInvalidPolicy, i, name, seg)
			}
		}
	}
	return nil
}

// uriStrings returns the uri of every login.uris entry, in entry order.
// Object entries contribute their "uri" string, string entries themselves;
// anything else is skipped.
func uriStrings(item value.Value) []string {
	entries, ok := value.Resolve(item, value.ParsePath(policy.URIsPath)).(value.Array)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range entries {
		switch e := entry.(type) {
		case value.Object:
			if uri, ok := e["uri"].(value.String); ok {
				out = append(out, string(uri))
			}
		case value.String:
			out = append(out, string(e))
		}
	}
	return out
}

func uris(item value.Value) value.Value {
	list := uriStrings(item)
	if len(list) == 0 {
		return value.Absent{}
	}
	out := make(value.Array, len(list))
	for i, u := range list {
		out[i] = value.String(u)
	}
	return out
}

// domains returns the sorted, de-duplicated hostnames of login.uris.
func domains(item value.Value) value.Value {
	list := uriStrings(item)
	if len(list) == 0 {
		return value.Absent{}
	}
	hosts := make([]string, 0, len(list))
	for _, u := range list {
		if host, ok := Hostname(u); ok {
			hosts = append(hosts, host)
		} else {
			hosts = append(hosts, u)
		}
	}
	slices.Sort(hosts)
	hosts = slices.Compact(hosts)

	out := make(value.Array, len(hosts))
	for i, h := range hosts {
		out[i] = value.String(h)
	}
	return out
}

// Hostname extracts the host from a loosely formed URI: the scheme, path,
// userinfo and port are stripped. IPv6 literals keep their brackets. It
// reports false when nothing is left.
//
// Vault URIs are frequently not valid URLs ("example.com", "androidapp://x",
// "10.0.0.1:8080"), so this is a lenient split rather than url.Parse.
func Hostname(uri string) (string, bool) {
	rest := uri
	if _, after, found := strings.Cut(rest, "://"); found {
		rest = after
	}
	rest, _, _ = strings.Cut(rest, "/")
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if strings.HasPrefix(rest, "[") {
		// Bracketed IPv6 literal; the port, if any, follows the "]".
		if end := strings.Index(rest, "]"); end >= 0 {
			rest = rest[:end+1]
		}
	} else {
		rest, _, _ = strings.Cut(rest, ":")
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
