// Package output streams run events to a human reader or stays quiet until the final
// JSON document is printed.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Channel is a human-readable event stream that can be switched on or off.
type Channel string

const (
	ChannelModel       Channel = "model"
	ChannelCompiledSQL Channel = "compiled-sql"
	ChannelResults     Channel = "results"
	ChannelTasks       Channel = "tasks"
)

const channelAll = "all"

func AllChannels() []Channel {
	return []Channel{ChannelModel, ChannelCompiledSQL, ChannelResults, ChannelTasks}
}

// ParseChannels validates channel names. "all" expands to every channel.
func ParseChannels(names []string) ([]Channel, error) {
	var out []Channel
	add := func(ch Channel) {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			switch {
			case name == "":
				continue
			case name == channelAll:
				for _, ch := range AllChannels() {
					add(ch)
				}
			case slices.Contains(AllChannels(), Channel(name)):
				add(Channel(name))
			default:
				return nil, fmt.Errorf("unknown output channel %q: must be one of model, compiled-sql, results, tasks, all", name)
			}
		}
	}
	return out, nil
}

type Options struct {
	// Color enables ANSI colouring of channel labels and errors.
	Color bool
	// ErrWriter receives error reports in channel mode. Defaults to the sink writer.
	ErrWriter io.Writer
}

// Sink is safe for concurrent use. Events of a disabled channel are dropped.
type Sink struct {
	mu        sync.Mutex
	w         io.Writer
	errW      io.Writer
	json      bool
	enabled   map[Channel]bool
	silent    bool
	labels    map[Channel]*color.Color
	errorMark *color.Color
}

// NewJSONSink suppresses every human channel. Only RawJSON and errors are written.
func NewJSONSink(w io.Writer) *Sink {
	return newSink(w, true, nil, Options{})
}

func NewChannelSink(w io.Writer, channels []Channel, opts Options) *Sink {
	return newSink(w, false, channels, opts)
}

func newSink(w io.Writer, jsonMode bool, channels []Channel, opts Options) *Sink {
	if w == nil {
		w = io.Discard
	}
	errW := opts.ErrWriter
	if errW == nil {
		errW = w
	}
	enabled := make(map[Channel]bool, len(channels))
	for _, ch := range channels {
		enabled[ch] = true
	}
	s := &Sink{
		w:       w,
		errW:    errW,
		json:    jsonMode,
		enabled: enabled,
		labels: map[Channel]*color.Color{
			ChannelModel:       color.New(color.FgCyan, color.Bold),
			ChannelCompiledSQL: color.New(color.FgYellow, color.Bold),
			ChannelResults:     color.New(color.FgGreen, color.Bold),
			ChannelTasks:       color.New(color.FgBlue),
		},
		errorMark: color.New(color.FgRed, color.Bold),
	}
	for _, c := range s.labels {
		setColor(c, opts.Color)
	}
	setColor(s.errorMark, opts.Color)
	return s
}

func setColor(c *color.Color, enabled bool) {
	if enabled {
		c.EnableColor()
		return
	}
	c.DisableColor()
}

// Silence suppresses every human channel. JSON output and errors are unaffected.
func (s *Sink) Silence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = true
}

func (s *Sink) JSONMode() bool {
	return s.json
}

// Enabled reports whether events on ch would be written.
func (s *Sink) Enabled(ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabledLocked(ch)
}

func (s *Sink) enabledLocked(ch Channel) bool {
	return !s.json && !s.silent && s.enabled[ch]
}

func (s *Sink) Model(text string) {
	s.emit(ChannelModel, "Model:", text)
}

func (s *Sink) CompiledSQL(sqlText string) {
	s.emit(ChannelCompiledSQL, "Compiled SQL:", sqlText)
}

func (s *Sink) Result(text string) {
	s.emit(ChannelResults, "Results:", text)
}

func (s *Sink) Task(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabledLocked(ChannelTasks) {
		return
	}
	_, _ = s.labels[ChannelTasks].Fprintf(s.w, format+"\n", args...)
}

// StatementError reports a failure that did not stop the run. It shares the
// results channel because it takes the place of that statement's results.
func (s *Sink) StatementError(index int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabledLocked(ChannelResults) {
		return
	}
	_, _ = fmt.Fprintf(s.w, "%s %s\n", s.errorMark.Sprintf("Statement %d failed:", index), message)
}

// RawJSON writes a finished JSON document. It is dropped outside JSON mode.
func (s *Sink) RawJSON(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.json {
		return
	}
	_, _ = s.w.Write(data)
	if len(data) == 0 || data[len(data)-1] != '\n' {
		_, _ = io.WriteString(s.w, "\n")
	}
}

// Error reports a run-ending failure: {"error": message} in JSON mode, a red
// "Error:" line otherwise.
func (s *Sink) Error(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.json {
		payload, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
		if marshalErr != nil {
			return
		}
		_, _ = s.w.Write(append(payload, '\n'))
		return
	}
	_, _ = fmt.Fprintf(s.errW, "%s %s\n", s.errorMark.Sprint("Error:"), err.Error())
}

func (s *Sink) emit(ch Channel, label, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabledLocked(ch) {
		return
	}
	_, _ = s.labels[ch].Fprintln(s.w, label)
	_, _ = io.WriteString(s.w, strings.TrimRight(text, "\n")+"\n")
}
