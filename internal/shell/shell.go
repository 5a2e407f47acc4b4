// Package shell compiles the page shell (prelude) and composes pages into
// it.
//
// The shell is plain HTML with markers of the form @@@NAME@@@:
//
//	@@@SLOT_CONTENT@@@      rendered page body (required)
//	@@@SLOT_STYLES@@@       assembled <style> element (required)
//	@@@SLOT_TITLE@@@        front matter title
//	@@@IF_DATE@@@ ... @@@SLOT_DATE@@@ ... @@@END_DATE@@@
//	@@@IF_TIME_TO_READ@@@ ... @@@SLOT_TIME_TO_READ@@@ ... @@@END_TIME_TO_READ@@@
//
// A conditional block is emitted only when its field is present; otherwise
// it is dropped together with its markers. Value slots of a block may only
// appear inside that block.
package shell

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"time"

	"github.com/starford/raido/internal/apperr"
)

// DefaultDateLayout renders dates as "January 2, 2006".
const DefaultDateLayout = "January 2, 2006"

const (
	markContent    = "SLOT_CONTENT"
	markStyles     = "SLOT_STYLES"
	markTitle      = "SLOT_TITLE"
	markDate       = "SLOT_DATE"
	markTimeToRead = "SLOT_TIME_TO_READ"
)

type block int

const (
	blockNone block = iota
	blockDate
	blockTimeToRead
)

var (
	markerRe = regexp.MustCompile(`@@@([A-Z_]+)@@@`)

	slots = map[string]block{
		markContent:    blockNone,
		markStyles:     blockNone,
		markTitle:      blockNone,
		markDate:       blockDate,
		markTimeToRead: blockTimeToRead,
	}
	opens = map[string]block{
		"IF_DATE":         blockDate,
		"IF_TIME_TO_READ": blockTimeToRead,
	}
	closes = map[string]block{
		"END_DATE":         blockDate,
		"END_TIME_TO_READ": blockTimeToRead,
	}
	required = []string{markContent, markStyles}
)

// segment is literal text or a slot, optionally gated by a block.
type segment struct {
	text []byte
	slot string
	gate block
}

// Shell is a compiled page shell. It is immutable and safe for concurrent
// use.
type Shell struct {
	segs       []segment
	dateLayout string
}

// Values are substituted into a Shell.
type Values struct {
	Content    []byte
	Styles     []byte
	Title      string
	Date       *time.Time
	TimeToRead *string
}

// Compile parses a shell. It fails with ErrMissingRequiredSlot when a
// required slot is absent and ErrMalformedShell on unknown markers or
// unbalanced blocks.
func Compile(src []byte, dateLayout string) (*Shell, error) {
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	s := &Shell{dateLayout: dateLayout}
	seen := make(map[string]bool)
	open := blockNone
	last := 0

	for _, loc := range markerRe.FindAllSubmatchIndex(src, -1) {
		if loc[0] > last {
			s.segs = append(s.segs, segment{text: src[last:loc[0]], gate: open})
		}
		last = loc[1]
		name := string(src[loc[2]:loc[3]])

		if b, ok := opens[name]; ok {
			if open != blockNone {
				return nil, fmt.Errorf("%w: nested block @@@%s@@@", apperr.ErrMalformedShell, name)
			}
			open = b
			continue
		}
		if b, ok := closes[name]; ok {
			if open != b {
				return nil, fmt.Errorf("%w: unpaired @@@%s@@@", apperr.ErrMalformedShell, name)
			}
			open = blockNone
			continue
		}
		gate, ok := slots[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown marker @@@%s@@@", apperr.ErrMalformedShell, name)
		}
		if gate != blockNone && gate != open {
			return nil, fmt.Errorf("%w: @@@%s@@@ outside its block", apperr.ErrMalformedShell, name)
		}
		seen[name] = true
		s.segs = append(s.segs, segment{slot: name, gate: open})
	}
	if open != blockNone {
		return nil, fmt.Errorf("%w: unterminated block", apperr.ErrMalformedShell)
	}
	if last < len(src) {
		s.segs = append(s.segs, segment{text: src[last:]})
	}

	for _, name := range required {
		if !seen[name] {
			return nil, fmt.Errorf("%w: @@@%s@@@", apperr.ErrMissingRequiredSlot, name)
		}
	}
	return s, nil
}

// Compose substitutes v into the shell in a single pass.
func (s *Shell) Compose(v Values) []byte {
	var b bytes.Buffer
	b.Grow(len(v.Content) + len(v.Styles) + 1024)
	for _, seg := range s.segs {
		switch seg.gate {
		case blockDate:
			if v.Date == nil {
				continue
			}
		case blockTimeToRead:
			if v.TimeToRead == nil {
				continue
			}
		}
		if seg.slot == "" {
			b.Write(seg.text)
			continue
		}
		switch seg.slot {
		case markContent:
			b.Write(v.Content)
		case markStyles:
			b.Write(v.Styles)
		case markTitle:
			b.WriteString(html.EscapeString(v.Title))
		case markDate:
			b.WriteString(html.EscapeString(v.Date.Format(s.dateLayout)))
		case markTimeToRead:
			b.WriteString(html.EscapeString(*v.TimeToRead))
		}
	}
	return b.Bytes()
}
