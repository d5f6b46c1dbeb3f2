// Package policy classifies changed files and decides whether a change is
// allowed to merge in the current release phase.
package policy

import (
	"fmt"
	"path"
	"strings"
)

// Class is the single category a changed file falls into.
type Class string

const (
	ClassDependency    Class = "dependency"
	ClassTest          Class = "test"
	ClassBuild         Class = "build"
	ClassDocumentation Class = "documentation"
	ClassProductCode   Class = "product-code"
)

// Mode is the release phase a repository is in.
type Mode string

const (
	// ModeCodeLockdown forbids any product code change.
	ModeCodeLockdown Mode = "code-lockdown"
	// ModeFeatureComplete allows product code changes only for bug fixes.
	ModeFeatureComplete Mode = "feature-complete"
)

// CommitType is the declared intent of a change.
type CommitType string

const (
	CommitTypeBugfix  CommitType = "BUGFIX"
	CommitTypeFeature CommitType = "FEATURE"
)

// Verdict is the per-file merge decision.
type Verdict string

const (
	VerdictAllowed   Verdict = "ALLOWED"
	VerdictViolation Verdict = "VIOLATION"
)

// rule matches a file path against one class. Rules are evaluated in order
// and the first match wins.
type rule struct {
	class   Class
	matches func(filePath string) bool
}

var rules = []rule{
	{ClassDependency, func(p string) bool {
		base := path.Base(p)
		return base == "go.mod" || base == "go.sum" || inDirectory(p, "vendor")
	}},
	{ClassTest, func(p string) bool {
		return strings.HasSuffix(p, "_test.go") || inDirectory(p, "test") || inDirectory(p, "tests")
	}},
	{ClassBuild, func(p string) bool {
		base := path.Base(p)
		return strings.HasPrefix(base, "Dockerfile") || base == "Makefile" ||
			inDirectory(p, ".tekton") ||
			strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml")
	}},
	{ClassDocumentation, func(p string) bool {
		return strings.HasSuffix(p, ".md") || inDirectory(p, "docs")
	}},
}

func inDirectory(filePath, directory string) bool {
	return strings.HasPrefix(filePath, directory+"/") || strings.Contains(filePath, "/"+directory+"/")
}

// Classify assigns a file path exactly one class. Product code is the default
// when no rule matches.
func Classify(filePath string) Class {
	for _, rule := range rules {
		if rule.matches(filePath) {
			return rule.class
		}
	}
	return ClassProductCode
}

// Decide returns the merge verdict for one classified file. Files outside
// product code are allowed in every mode; product code is never allowed
// during code lockdown and only as a bug fix once the release is feature
// complete.
func Decide(mode Mode, class Class, commitType CommitType) (Verdict, error) {
	if class != ClassProductCode {
		return VerdictAllowed, nil
	}
	switch mode {
	case ModeCodeLockdown:
		return VerdictViolation, nil
	case ModeFeatureComplete:
		if commitType == CommitTypeBugfix {
			return VerdictAllowed, nil
		}
		return VerdictViolation, nil
	default:
		return "", fmt.Errorf("unknown policy mode %q", mode)
	}
}
