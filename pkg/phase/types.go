// Package phase turns resolved anchors into an execution window and named
// phase durations.
package phase

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/launchtrace/pkg/anchor"
)

// ErrUnknownName is returned when decoding an unrecognised enum name.
var ErrUnknownName = errors.New("unknown name")

func parseName(names []string, text []byte) (int, error) {
	idx := slices.IndexFunc(names, func(n string) bool { return strings.EqualFold(n, string(text)) })
	if idx < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownName, text)
	}

	return idx, nil
}

// Category selects the window-end policy.
type Category uint8

// Categories.
const (
	CategoryNormal Category = iota
	CategoryCamera
	CategoryRecent
	CategoryInternet
)

var categoryNames = [...]string{"Normal", "Camera", "Recent", "Internet"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}

	return "Unknown"
}

// MarshalText encodes the category name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name.
func (c *Category) UnmarshalText(text []byte) error {
	idx, err := parseName(categoryNames[:], text)
	if err != nil {
		return err
	}

	*c = Category(idx)

	return nil
}

// DetectCategory classifies a launch from its trace file name and package.
// Camera wins over Recent, which wins over Internet.
func DetectCategory(fileName, pkg string) Category {
	pkg = strings.ToLower(pkg)

	switch {
	case strings.Contains(pkg, "camera"):
		return CategoryCamera
	case anchor.IsRecentFile(fileName):
		return CategoryRecent
	case strings.Contains(strings.ToLower(filepath.Base(fileName)), "internet"),
		strings.Contains(pkg, "browser"):
		return CategoryInternet
	default:
		return CategoryNormal
	}
}

// LaunchType tells whether the process was created for the launch.
type LaunchType uint8

// Launch types.
const (
	Warm LaunchType = iota
	Cold
)

func (l LaunchType) String() string {
	if l == Cold {
		return "Cold"
	}

	return "Warm"
}

// MarshalText encodes the launch type name.
func (l LaunchType) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a launch type name.
func (l *LaunchType) UnmarshalText(text []byte) error {
	idx, err := parseName([]string{"Warm", "Cold"}, text)
	if err != nil {
		return err
	}

	*l = LaunchType(idx)

	return nil
}

// Chain marks phases that only apply to one launch type.
type Chain uint8

// Chains.
const (
	ChainCommon Chain = iota
	ChainCold
	ChainWarm
)

// Applies reports whether phases of this chain count for launch type lt.
func (c Chain) Applies(lt LaunchType) bool {
	switch c {
	case ChainCold:
		return lt == Cold
	case ChainWarm:
		return lt == Warm
	case ChainCommon:
	}

	return true
}

// Phase names.
const (
	TouchDuration          = "Touch Duration"
	TouchUpToActivityStart = "Touch Up ~ Activity Start"
	TouchDownToStartProc   = "Touch Down ~ Start Proc"
	StartProc              = "Start Proc"
	StartProcToThreadMain  = "Start Proc ~ ActivityThreadMain"
	ActivityThreadMain     = "Activity Thread Main"
	ThreadMainToBindApp    = "ActivityThreadMain ~ bindApplication"
	BindApplication        = "Bind Application"
	BindAppToActivityStart = "bindApplication ~ activityStart"
	ActivityStart          = "Activity Start"
	ActivityStartToResume  = "activityStart ~ activityResume"
	ActivityResume         = "Activity Resume"
	ResumeToChoreographer  = "ActivityResume ~ Choreographer"
	Choreographer          = "Choreographer"
	ChoreographerToIdle    = "Choreographer ~ ActivityIdle"
	ActivityIdle           = "ActivityIdle"
	IdleToAnimationEnd     = "ActivityIdle ~ Animating end"

	CameraOnCreate     = "onCreate"
	CameraOpenRequest  = "OpenCameraRequest"
	CameraOnResume     = "onResume"
	CameraStartPreview = "StartPreviewRequest"
)

// Phase is one named duration. Resolved is false when an operand anchor was
// absent; Ms is 0 in that case.
type Phase struct {
	Name     string  `json:"name"`
	Ms       float64 `json:"ms"`
	Chain    Chain   `json:"chain,omitempty"`
	Resolved bool    `json:"resolved"`
}

var chainNames = [...]string{"common", "cold", "warm"}

func (c Chain) String() string {
	if int(c) < len(chainNames) {
		return chainNames[c]
	}

	return "unknown"
}

// MarshalText encodes the chain name.
func (c Chain) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a chain name.
func (c *Chain) UnmarshalText(text []byte) error {
	idx, err := parseName(chainNames[:], text)
	if err != nil {
		return err
	}

	*c = Chain(idx)

	return nil
}
