// Package router implements ParameterPath's hierarchical addressing
// grammar and ParameterRouter, the resolver that ties a path to a live
// module parameter (spec's ParameterPath grammar, grounded on
// original_source/src/core/ParameterPath.{h,cpp}).
//
// Path format: <instanceName>.<parameterName>[<index>]
//
//	tracker1.position          - simple parameter
//	tracker1.step[4].position  - not supported: only one trailing index
//	                              is carried, matching the original's
//	                              single-index Path struct
//	multisampler2.volume       - another instance
package router

import (
	"strconv"
	"strings"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

// Path is a parsed ParameterPath: an instance name, a parameter name,
// and an optional non-negative index.
type Path struct {
	InstanceName  string
	ParameterName string
	Index         int // only meaningful when HasIndex is true
	HasIndex      bool
}

// Parse parses a path string of the form "<instance>.<parameter>[<index>]".
func Parse(path string) (Path, error) {
	if path == "" {
		return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "empty path")
	}

	lastDot := strings.LastIndexByte(path, '.')
	if lastDot <= 0 || lastDot == len(path)-1 {
		return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "missing or misplaced '.' separator: "+path)
	}

	instanceName := path[:lastDot]
	if !isValidIdentifier(instanceName) {
		return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "invalid instance name: "+instanceName)
	}

	paramPart := path[lastDot+1:]
	bracketOpen := strings.IndexByte(paramPart, '[')
	bracketClose := strings.IndexByte(paramPart, ']')

	switch {
	case bracketOpen == -1 && bracketClose == -1:
		if !isValidIdentifier(paramPart) {
			return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "invalid parameter name: "+paramPart)
		}
		return Path{InstanceName: instanceName, ParameterName: paramPart}, nil

	case bracketOpen != -1 && bracketClose != -1:
		if bracketOpen == 0 || bracketClose <= bracketOpen+1 || bracketClose != len(paramPart)-1 {
			return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "malformed index brackets: "+paramPart)
		}
		paramName := paramPart[:bracketOpen]
		if !isValidIdentifier(paramName) {
			return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "invalid parameter name: "+paramName)
		}
		idxStr := paramPart[bracketOpen+1 : bracketClose]
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "invalid index: "+idxStr)
		}
		return Path{InstanceName: instanceName, ParameterName: paramName, Index: idx, HasIndex: true}, nil

	default:
		return Path{}, enginerr.New(enginerr.InvalidArgument, "router.Parse", "mismatched index brackets: "+paramPart)
	}
}

// IsValidFormat reports whether path parses successfully, without
// surfacing the parse error.
func IsValidFormat(path string) bool {
	_, err := Parse(path)
	return err == nil
}

// Build assembles a path string from components — the inverse of Parse.
func Build(instanceName, parameterName string, index int, hasIndex bool) string {
	var sb strings.Builder
	sb.WriteString(instanceName)
	sb.WriteByte('.')
	sb.WriteString(parameterName)
	if hasIndex {
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(index))
		sb.WriteByte(']')
	}
	return sb.String()
}

// String renders p back into path-string form.
func (p Path) String() string {
	return Build(p.InstanceName, p.ParameterName, p.Index, p.HasIndex)
}

// isValidIdentifier matches the original's rule: starts with a letter or
// underscore, rest alphanumeric/underscore/hyphen.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	first := s[0]
	if !isAlpha(first) && first != '_' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool { return isAlpha(c) || isDigit(c) }
