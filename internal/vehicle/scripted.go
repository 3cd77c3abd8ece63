package vehicle

import "drivenet/internal/track"

// lookAhead is the parameter step used to derive a scripted vehicle's heading.
const lookAhead = 0.01

// Scripted is a traffic vehicle pinned to one lane. It advances its track
// parameter by a fixed amount each step and is never damaged.
type Scripted struct {
	Body
	Lane int
	T    float64
	// TrackSpeed is the per-step parameter increment. Body.Speed holds the
	// same rate in world units.
	TrackSpeed float64
}

func NewScripted(tr track.Track, lane int, t, trackSpeed, width, height float64) *Scripted {
	s := &Scripted{
		Body:       Body{Width: width, Height: height},
		Lane:       lane,
		T:          t,
		TrackSpeed: trackSpeed,
	}
	s.snap(tr)
	return s
}

func (s *Scripted) Step(tr track.Track) {
	s.T += s.TrackSpeed
	if period := tr.Period(); period > 0 && s.T > period {
		s.T -= period
	}
	s.snap(tr)
}

func (s *Scripted) snap(tr track.Track) {
	pose := tr.LaneCenter(s.Lane, s.T)
	s.Position = pose.Position
	s.Heading, _ = track.HeadingToward(pose.Position, tr.LaneCenter(s.Lane, s.T+lookAhead).Position)
	s.Speed = tr.Progress(0, s.TrackSpeed)
	s.UpdatePolygon()
}
