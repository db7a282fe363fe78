package stt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/murmur-app/murmur/model"
)

const (
	connectAttempts = 20
	connectBackoff  = 500 * time.Millisecond
	idleTimeout     = 15 * time.Minute
	audioQueueDepth = 64
)

// Options tunes the streaming connection parameters carried in the listen
// URL's query string.
type Options struct {
	Languages []string
	Channels  int
	// RedemptionMS is the silence duration before the backend forces a
	// partial final. Short values give snappier feedback for guided
	// first-run sessions; normal sessions want the longer default.
	RedemptionMS int
}

// ListenURL builds the websocket endpoint URL for a connection and options.
func ListenURL(conn model.Connection, opts Options) (string, error) {
	u, err := url.Parse(conn.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/v1/listen"

	q := url.Values{}
	for _, lang := range opts.Languages {
		q.Add("languages", lang)
	}
	if conn.Model != "" {
		q.Set("model", conn.Model)
	}
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(model.SampleRate))
	q.Set("encoding", "linear16")
	channels := opts.Channels
	if channels != 2 {
		channels = 1
	}
	q.Set("channels", strconv.Itoa(channels))
	if opts.RedemptionMS > 0 {
		q.Set("redemption_time_ms", strconv.Itoa(opts.RedemptionMS))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Client is the long-lived bridge to the transcription backend: one
// websocket per session, a send task draining audio and control queues, and
// a receive task yielding structured responses. A drop mid-session is
// terminal for the client; restarting is the session's decision.
type Client struct {
	conn     *websocket.Conn
	stereo   bool
	audio    chan []byte
	control  chan struct{}
	resps    chan StreamResponse
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *logrus.Entry
}

// Dial connects to the backend with bounded retry (initial connect only) and
// starts the send and receive tasks.
func Dial(ctx context.Context, conn model.Connection, opts Options) (*Client, error) {
	wsURL, err := ListenURL(conn, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if conn.APIKey != "" {
		header.Set("Authorization", "Bearer "+conn.APIKey)
	}

	log := logrus.WithField("component", "bridge")

	var ws *websocket.Conn
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ws, _, lastErr = websocket.DefaultDialer.DialContext(ctx, wsURL, header)
		if lastErr == nil {
			break
		}
		log.WithError(lastErr).WithField("attempt", attempt).Warn("backend connect failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("connect to backend after %d attempts: %w", connectAttempts, lastErr)
	}
	log.WithField("channels", opts.Channels).Info("connected to transcription backend")

	c := &Client{
		conn:    ws,
		stereo:  opts.Channels == 2,
		audio:   make(chan []byte, audioQueueDepth),
		control: make(chan struct{}, 1),
		resps:   make(chan StreamResponse, 16),
		stop:    make(chan struct{}),
		log:     log,
	}
	c.wg.Add(2)
	go c.sendLoop()
	go c.receiveLoop()
	return c, nil
}

// SendAudio queues one processed chunk pair for streaming. The two channels
// are kept separate on the wire so the backend can attribute words to their
// source. When the outbound queue is full the chunk is dropped rather than
// blocking the processing path.
func (c *Client) SendAudio(mic, speaker model.AudioChunk) {
	var frame []byte
	if c.stereo {
		frame = encodeStereoPCM16(mic, speaker)
	} else {
		frame = encodePCM16(mic)
	}
	select {
	case c.audio <- frame:
	default:
		c.log.Warn("outbound audio queue full, dropping chunk")
	}
}

// Finalize asks the backend to flush a lingering partial immediately.
func (c *Client) Finalize() {
	select {
	case c.control <- struct{}{}:
	default:
	}
}

// Responses yields transcript events. The channel is closed when the stream
// ends — close frame, receive error or idle timeout — and cannot be
// restarted except by dialing a new client.
func (c *Client) Responses() <-chan StreamResponse {
	return c.resps
}

func (c *Client) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case frame := <-c.audio:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.log.WithError(err).Error("audio write failed")
				return
			}
		case <-c.control:
			msg, _ := json.Marshal(controlMessage{Type: controlFinalize})
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.WithError(err).Error("control write failed")
				return
			}
		}
	}
}

func (c *Client) receiveLoop() {
	defer c.wg.Done()
	defer close(c.resps)

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
				// expected during shutdown
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Info("backend closed the stream")
				} else {
					c.log.WithError(err).Error("backend read failed, stream terminated")
				}
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var resp StreamResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.WithError(err).Warn("undecodable backend frame")
			continue
		}
		if resp.Type != "Results" {
			continue
		}
		select {
		case c.resps <- resp:
		case <-c.stop:
			return
		}
	}
}

// Close sends a close frame, tears the connection down and joins both
// tasks. Idempotent.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
		_ = c.conn.Close()
		c.wg.Wait()
	})
}

func sampleToPCM16(s float32) int16 {
	v := float64(s)
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(math.Round(v * 32767))
}

// encodePCM16 serializes one mono chunk as 16-bit little-endian PCM.
func encodePCM16(samples model.AudioChunk) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sampleToPCM16(s)))
	}
	return out
}

// encodeStereoPCM16 interleaves (mic, speaker) as 16-bit little-endian PCM.
// If the chunks differ in length the longer tail is padded against silence.
func encodeStereoPCM16(mic, speaker model.AudioChunk) []byte {
	n := len(mic)
	if len(speaker) > n {
		n = len(speaker)
	}
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		var m, s float32
		if i < len(mic) {
			m = mic[i]
		}
		if i < len(speaker) {
			s = speaker[i]
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(sampleToPCM16(m)))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(sampleToPCM16(s)))
	}
	return out
}
