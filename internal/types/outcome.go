package types

import "fmt"

// DetectionStatus classifies the result of probing a byte range with one
// format detector.
type DetectionStatus int

const (
	// Matched means the range holds a well-formed image of the probed
	// format and the outcome carries its total size.
	Matched DetectionStatus = iota
	// NotThisFormat means the range does not start with the probed
	// format at all. Routine while scanning.
	NotThisFormat
	// RecognizedButMalformed means the format's signature matched but a
	// required structure is missing or inconsistent.
	RecognizedButMalformed
	// RecognizedButWrongRole means the container is well formed but does
	// not carry a bootloader payload of the expected role.
	RecognizedButWrongRole
)

// String returns the status name used in logs and inspect output.
func (s DetectionStatus) String() string {
	switch s {
	case Matched:
		return "matched"
	case NotThisFormat:
		return "not this format"
	case RecognizedButMalformed:
		return "recognized but malformed"
	case RecognizedButWrongRole:
		return "recognized but wrong role"
	default:
		return fmt.Sprintf("detection status %d", int(s))
	}
}

// DetectionOutcome is the tagged result of one detector probe. Size is
// meaningful only when Status is Matched; Reason only for the two
// recognized-but-rejected statuses.
type DetectionOutcome struct {
	Status DetectionStatus
	Size   int64
	Reason string
}

// MatchedOutcome builds the outcome for a successful probe of an image
// occupying size bytes from the probe position.
func MatchedOutcome(size int64) DetectionOutcome {
	return DetectionOutcome{Status: Matched, Size: size}
}

// NoMatchOutcome builds the outcome for a probe that found a different
// format.
func NoMatchOutcome() DetectionOutcome {
	return DetectionOutcome{Status: NotThisFormat}
}

// MalformedOutcome builds the outcome for a recognized container with a
// broken or truncated structure.
func MalformedOutcome(format string, args ...interface{}) DetectionOutcome {
	return DetectionOutcome{
		Status: RecognizedButMalformed,
		Reason: fmt.Sprintf(format, args...),
	}
}

// WrongRoleOutcome builds the outcome for a well-formed container whose
// payload is not the expected bootloader role.
func WrongRoleOutcome(format string, args ...interface{}) DetectionOutcome {
	return DetectionOutcome{
		Status: RecognizedButWrongRole,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsMatch reports whether the probe succeeded.
func (o DetectionOutcome) IsMatch() bool {
	return o.Status == Matched
}

// Recognized reports whether the probed format's signature matched at
// all, regardless of whether the image was usable.
func (o DetectionOutcome) Recognized() bool {
	return o.Status != NotThisFormat
}

// String renders the outcome for diagnostics.
func (o DetectionOutcome) String() string {
	switch o.Status {
	case Matched:
		return fmt.Sprintf("matched, %d bytes", o.Size)
	case RecognizedButMalformed, RecognizedButWrongRole:
		return fmt.Sprintf("%s: %s", o.Status, o.Reason)
	default:
		return o.Status.String()
	}
}
