package rag

import (
	"context"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/ata243y/live-streamer-university-question-answering/pkg/provider"
)

// firstSegmentBuffer is how many characters of model output are buffered
// before the label cleanup runs and the stream switches to passthrough.
const firstSegmentBuffer = 64

var (
	// answerLabelRe matches a leading label such as "Cevap:" or "**ANSWER -"
	// together with everything before it.
	answerLabelRe = regexp.MustCompile(`(?is)^(?:.*?[^\p{L}\p{N}])??(cevap|yanıt|yanit|answer|özet|ozet|sonuç|sonuc|not)\s*[:*\-–—]+\s*\**\s*`)
	leadingDashRe = regexp.MustCompile(`^\s*[-–—]\s*`)
	spaceRunRe    = regexp.MustCompile(`\s+`)
)

// cleanAnswerText strips model formatting tics from the head of an answer:
// label prefixes, markdown emphasis, whitespace runs, and a lowercase first
// letter.
func cleanAnswerText(text string) string {
	text = strings.TrimSpace(norm.NFKC.String(text))
	text = answerLabelRe.ReplaceAllString(text, "")
	text = leadingDashRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "*", "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.Trim(text, " .:*-–—")

	if r, size := utf8.DecodeRuneInString(text); size > 0 && unicode.IsLower(r) {
		text = string(unicode.ToUpper(r)) + text[size:]
	}
	return text
}

// firstSegmentCleaner buffers the head of a model stream so the label
// cleanup sees enough text to work with, then passes the rest through
// untouched.
type firstSegmentCleaner struct {
	buf         strings.Builder
	passthrough bool
}

// feed consumes a raw chunk and reports the next segment to emit, if any.
func (c *firstSegmentCleaner) feed(chunk string) (string, bool) {
	if c.passthrough {
		return chunk, chunk != ""
	}
	c.buf.WriteString(chunk)
	if c.buf.Len() < firstSegmentBuffer {
		return "", false
	}
	c.passthrough = true
	return cleanAnswerText(c.buf.String()), true
}

// flush releases a still-buffered head at end of stream.
func (c *firstSegmentCleaner) flush() (string, bool) {
	if c.passthrough || c.buf.Len() == 0 {
		return "", false
	}
	c.passthrough = true
	return cleanAnswerText(c.buf.String()), true
}

// AnswerStream yields cleaned answer segments. When the strict pass answers
// with the no-context sentinel, the stream transparently swaps itself for a
// web-fallback pass and keeps yielding.
//
// Sentinel detection is bounded to the first cleaned segment, so the head
// of firstSegmentBuffer characters. The strict prompt instructs the model
// to output the sentinel alone, which keeps it inside that head; once a
// real segment has been yielded the stream is committed and later text
// passes through unchecked.
type AnswerStream struct {
	svc     *Service
	ctx     context.Context
	query   string
	inner   provider.Stream
	cleaner firstSegmentCleaner
	mode    provider.Mode
	emitted bool // a non-sentinel segment has been yielded
	failed  bool // error already surfaced as the fixed error message
}

// Recv returns the next answer segment. io.EOF signals the end. Failures
// mid-stream surface as one segment carrying the fixed error message, then
// io.EOF; callers never see a raw error from the model.
func (a *AnswerStream) Recv() (string, error) {
	if a.failed {
		return "", io.EOF
	}
	for {
		chunk, err := a.inner.Recv()
		if err == io.EOF {
			seg, ok := a.cleaner.flush()
			if !ok {
				if !a.emitted && a.mode == provider.ModeStrict {
					if ferr := a.fallback(); ferr != nil {
						return a.fail(ferr)
					}
					continue
				}
				return "", io.EOF
			}
			if a.mode == provider.ModeStrict && isSentinel(seg) {
				if ferr := a.fallback(); ferr != nil {
					return a.fail(ferr)
				}
				continue
			}
			a.emitted = true
			return seg, nil
		}
		if err != nil {
			return a.fail(err)
		}

		seg, ok := a.cleaner.feed(chunk)
		if !ok {
			continue
		}
		if !a.emitted && a.mode == provider.ModeStrict && isSentinel(seg) {
			if ferr := a.fallback(); ferr != nil {
				return a.fail(ferr)
			}
			continue
		}
		a.emitted = true
		return seg, nil
	}
}

// fail logs a terminal stream failure and hands the caller the fixed error
// message as the final segment.
func (a *AnswerStream) fail(err error) (string, error) {
	a.svc.log.Error("answer stream failed", "query", a.query, "error", err)
	a.failed = true
	if a.emitted {
		return "\n" + ErrorResponse, nil
	}
	return ErrorResponse, nil
}

// Close releases the underlying model stream.
func (a *AnswerStream) Close() error {
	if a.inner == nil {
		return nil
	}
	return a.inner.Close()
}

// drain collects a whole model stream into one string and closes it.
func drain(stream provider.Stream) (string, error) {
	defer stream.Close()
	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
}

// textStream replays an already-assembled answer as a single-segment
// stream. The web fallback drains its generation pass before touching the
// corpus, then hands the text back through one of these.
type textStream struct {
	text string
	done bool
}

func (t *textStream) Recv() (string, error) {
	if t.done || t.text == "" {
		return "", io.EOF
	}
	t.done = true
	return t.text, nil
}

func (t *textStream) Close() error { return nil }

// isSentinel reports whether the first cleaned segment is the model
// declining for lack of context. The strict prompt instructs the model to
// output the sentinel alone, so a sentinel anywhere in the head means the
// whole answer is a refusal.
func isSentinel(segment string) bool {
	return strings.Contains(segment, provider.NoContextSentinel)
}

// fallback swaps the strict stream for a web-search pass over the same
// query and resets the cleaner for the new head.
func (a *AnswerStream) fallback() error {
	a.inner.Close()
	stream, err := a.svc.fallbackStream(a.ctx, a.query)
	if err != nil {
		return err
	}
	a.inner = stream
	a.cleaner = firstSegmentCleaner{}
	a.mode = provider.ModeWeb
	return nil
}
