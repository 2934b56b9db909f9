package live

import (
	"encoding/base64"
	"strings"
	"sync"

	"github.com/jarvislabs/jarvis-live/pkg/core"
	"github.com/jarvislabs/jarvis-live/pkg/live/protocol"
)

const (
	// DefaultMaxChunkBytes is the raw payload cap per media chunk before
	// base64 expansion, sized well under typical websocket frame limits.
	DefaultMaxChunkBytes = 8 * 1024

	// DefaultPlaybackBufferChunks bounds inbound jitter buffering. Chunks
	// beyond this are delivered immediately rather than queued without bound.
	DefaultPlaybackBufferChunks = 8

	// MimePCM16k is the outbound microphone format.
	MimePCM16k = "audio/pcm;rate=16000"
	// MimeJPEG is the outbound screen-frame format.
	MimeJPEG = "image/jpeg"
)

// Framer splits raw media into protocol-sized chunks and decodes inbound
// audio fragments for playback.
type Framer struct {
	// MaxChunkBytes caps the raw payload per chunk. Zero means the default.
	MaxChunkBytes int
}

// Frame chunks one capture buffer into wire-ready media chunks, preserving
// byte order across the resulting sequence.
func (f Framer) Frame(mimeType string, data []byte) []protocol.MediaChunk {
	if len(data) == 0 {
		return nil
	}
	max := f.MaxChunkBytes
	if max <= 0 {
		max = DefaultMaxChunkBytes
	}

	chunks := make([]protocol.MediaChunk, 0, (len(data)+max-1)/max)
	for offset := 0; offset < len(data); offset += max {
		end := offset + max
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, protocol.MediaChunk{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data[offset:end]),
		})
	}
	return chunks
}

// FrameWhole encodes one capture buffer as a single chunk regardless of
// size. Video frames travel whole: splitting would leave base64 padding
// inside the payload, and newest-wins replacement needs one atomic unit.
func (f Framer) FrameWhole(mimeType string, data []byte) protocol.MediaChunk {
	return protocol.MediaChunk{
		MimeType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// DecodeInline decodes one inbound inlineData part into raw bytes.
func (f Framer) DecodeInline(part protocol.InlineData) ([]byte, error) {
	audio, err := base64.StdEncoding.DecodeString(part.Data)
	if err != nil {
		return nil, core.NewAPIError("invalid base64 in inbound media part")
	}
	return audio, nil
}

// PlaybackSink receives decoded assistant audio in arrival order. The device
// layer behind it is opaque to the engine.
type PlaybackSink interface {
	Play(mimeType string, audio []byte)
	// Flush discards any buffered, unplayed audio. Called on interruption.
	Flush()
}

// NopSink discards all audio. Used when the caller only wants transcripts.
type NopSink struct{}

func (NopSink) Play(string, []byte) {}
func (NopSink) Flush()              {}

// playbackBuffer smooths delivery to the sink with a small bounded queue.
// It never reorders and never grows past its capacity.
type playbackBuffer struct {
	sink PlaybackSink

	mu      sync.Mutex
	pending []inlineAudio
	cap     int
}

type inlineAudio struct {
	mimeType string
	data     []byte
}

func newPlaybackBuffer(sink PlaybackSink, capacity int) *playbackBuffer {
	if sink == nil {
		sink = NopSink{}
	}
	if capacity <= 0 {
		capacity = DefaultPlaybackBufferChunks
	}
	return &playbackBuffer{
		sink:    sink,
		pending: make([]inlineAudio, 0, capacity),
		cap:     capacity,
	}
}

func (b *playbackBuffer) deliver(mimeType string, audio []byte) {
	b.mu.Lock()
	b.pending = append(b.pending, inlineAudio{mimeType: mimeType, data: audio})
	var drain []inlineAudio
	if len(b.pending) >= b.cap {
		drain = b.pending
		b.pending = make([]inlineAudio, 0, b.cap)
	}
	b.mu.Unlock()

	for _, chunk := range drain {
		b.sink.Play(chunk.mimeType, chunk.data)
	}
}

// drainAll hands everything buffered to the sink, in order.
func (b *playbackBuffer) drainAll() {
	b.mu.Lock()
	drain := b.pending
	b.pending = make([]inlineAudio, 0, b.cap)
	b.mu.Unlock()

	for _, chunk := range drain {
		b.sink.Play(chunk.mimeType, chunk.data)
	}
}

// discard drops buffered audio and flushes the sink. Interruption path.
func (b *playbackBuffer) discard() {
	b.mu.Lock()
	b.pending = make([]inlineAudio, 0, b.cap)
	b.mu.Unlock()
	b.sink.Flush()
}

// sendQueue applies the outbound backpressure policy: a stale queued video
// frame is replaced by a newer one (newest wins), while audio past capacity
// is rejected loudly so the caller hears about the gap.
type sendQueue struct {
	mu       sync.Mutex
	audio    []protocol.MediaChunk
	video    *protocol.MediaChunk
	audioCap int
}

func newSendQueue(audioCap int) *sendQueue {
	if audioCap <= 0 {
		audioCap = 64
	}
	return &sendQueue{
		audio:    make([]protocol.MediaChunk, 0, audioCap),
		audioCap: audioCap,
	}
}

var errAudioQueueFull = core.NewAPIError("outbound audio queue is full")

func (q *sendQueue) enqueueAudio(chunk protocol.MediaChunk) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.audio) >= q.audioCap {
		return errAudioQueueFull
	}
	q.audio = append(q.audio, chunk)
	return nil
}

func (q *sendQueue) enqueueVideo(chunk protocol.MediaChunk) (replaced bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	replaced = q.video != nil
	q.video = &chunk
	return replaced
}

// next pops the oldest audio chunk, or the pending video frame when no audio
// is waiting. Audio wins ties: conversational correctness degrades more from
// audio gaps than from a stale frame.
func (q *sendQueue) next() (protocol.MediaChunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.audio) > 0 {
		chunk := q.audio[0]
		q.audio = q.audio[1:]
		return chunk, true
	}
	if q.video != nil {
		chunk := *q.video
		q.video = nil
		return chunk, true
	}
	return protocol.MediaChunk{}, false
}

// requeueAudioFront puts a popped chunk back at the head after a failed
// send so ordering survives a reconnect. May exceed the cap by one.
func (q *sendQueue) requeueAudioFront(chunk protocol.MediaChunk) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = append([]protocol.MediaChunk{chunk}, q.audio...)
}

func (q *sendQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = q.audio[:0]
	q.video = nil
}

// IsAudioMime reports whether the MIME type names an audio stream.
func IsAudioMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/")
}
