package mission

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/drone-mission/internal/drone"
	"github.com/roman-kulish/drone-mission/internal/location"
	"github.com/roman-kulish/drone-mission/internal/vision"
)

const (
	frameWidth  = 960
	frameHeight = 720
)

var errNoAck = errors.New("no ack")

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
}

// markerAt returns a square home marker whose centroid is offset px to the
// right of the frame center and whose area is ratio of the frame area
func markerAt(id int, offset, ratio float64) vision.Marker {
	side := math.Sqrt(ratio * frameWidth * frameHeight)
	cx, cy := frameWidth/2+offset, float64(frameHeight/2)
	h := side / 2

	return vision.Marker{
		ID: id,
		Corners: vision.Corners{
			{X: cx - h, Y: cy - h},
			{X: cx + h, Y: cy - h},
			{X: cx + h, Y: cy + h},
			{X: cx - h, Y: cy + h},
		},
	}
}

type fakeLink struct {
	mu sync.Mutex

	battery    int
	batteryErr error
	frame      image.Image
	frames     []image.Image // served before falling back to frame
	reject     map[string]error
	sent       []drone.Command
	streaming  bool
	videoErr   error

	// when gate is set, the takeoff command signals entered and blocks until gate is closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		battery: 80,
		frame:   newFrame(),
		reject:  make(map[string]error),
	}
}

func (l *fakeLink) Send(ctx context.Context, cmd drone.Command) error {
	if cmd.Verb == drone.VerbTakeoff && l.gate != nil {
		l.entered <- struct{}{}
		select {
		case <-l.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err, ok := l.reject[cmd.String()]; ok {
		return err
	}
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *fakeLink) Battery(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.battery, l.batteryErr
}

func (l *fakeLink) Frame() image.Image {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.frames) > 0 {
		f := l.frames[0]
		l.frames = l.frames[1:]
		return f
	}
	return l.frame
}

func (l *fakeLink) StartVideo(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.videoErr != nil {
		return l.videoErr
	}
	l.streaming = true
	return nil
}

func (l *fakeLink) StopVideo() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streaming = false
	return nil
}

func (l *fakeLink) commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.sent))
	for i, c := range l.sent {
		out[i] = c.String()
	}
	return out
}

func (l *fakeLink) count(verb drone.Verb) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	for _, c := range l.sent {
		if c.Verb == verb {
			n++
		}
	}
	return n
}

type fakeVision struct {
	mu sync.Mutex

	markers []vision.Marker
	script  [][]vision.Marker // served before falling back to markers
	pose    vision.Pose
	err     error
	calls   int
}

func newFakeVision(markers ...vision.Marker) *fakeVision {
	return &fakeVision{markers: markers}
}

func (v *fakeVision) DetectMarkers(image.Image) ([]vision.Marker, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if len(v.script) > 0 {
		m := v.script[0]
		v.script = v.script[1:]
		return m, nil
	}
	return v.markers, nil
}

func (v *fakeVision) EstimatePose(vision.Corners) (vision.Pose, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pose, nil
}

type recordedSample struct {
	missionID string
	round     int
	sample    AlignmentSample
}

type fakeRecorder struct {
	mu       sync.Mutex
	missions []Mission
	samples  []recordedSample
}

func (r *fakeRecorder) RecordMission(_ context.Context, m Mission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missions = append(r.missions, m)
	return nil
}

func (r *fakeRecorder) RecordAlignment(_ context.Context, missionID string, round int, s AlignmentSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, recordedSample{missionID, round, s})
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(_ context.Context, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type fakeArchiver struct {
	mission Mission
	frames  int
	err     error
}

func (a *fakeArchiver) Archive(_ context.Context, m Mission, frames []image.Image) error {
	a.mission = m
	a.frames = len(frames)
	return a.err
}

func testLocation() location.Location {
	return location.Location{
		ID: "warehouse",
		Path: []location.MovementCommand{
			{Direction: drone.DirectionForward, Distance: 3},
			{Direction: drone.DirectionLeft, Distance: 1},
		},
		CapturePoints: []location.CapturePoint{
			{FrameCount: 2},
			{Position: &location.MovementCommand{Direction: drone.DirectionUp, Distance: 0.5}, FrameCount: 1},
		},
		ReturnPath: []location.MovementCommand{
			{Direction: drone.DirectionRight, Distance: 1},
			{Direction: drone.DirectionBack, Distance: 3},
		},
	}
}
