// Package availability joins catalog discovery and per-room slot queries
// into the per-studio listing of bookable windows.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/padel-scheduler/internal/slots"
	"github.com/example/padel-scheduler/internal/vivacrm"
)

// Booking duration bounds accepted by the widgets.
const (
	MinDurationMinutes = 60
	MaxDurationMinutes = 120
	DurationStep       = 30
)

const defaultQueryLimit = 8

var (
	// ErrNoWindows means the query succeeded but nothing contiguous of the
	// requested duration exists anywhere.
	ErrNoWindows = errors.New("no contiguous windows")
	// ErrBadRequest marks an invalid date or duration.
	ErrBadRequest = errors.New("bad availability request")
)

// Source abstracts the slot provider; vivacrm.Client satisfies it.
type Source interface {
	Rooms(ctx context.Context) ([]vivacrm.RoomDescriptor, error)
	Slots(ctx context.Context, room vivacrm.RoomDescriptor, date string) ([]time.Time, error)
}

// Service fans per-room availability queries out concurrently and feeds the
// window aggregator. It is independent of the booking scheduler and safe to
// call while a booking task is in flight.
type Service struct {
	source Source
	logger zerolog.Logger
	limit  int
}

// NewService builds a Service; limit caps concurrent per-room queries and
// defaults to 8 when non-positive.
func NewService(source Source, limit int, logger zerolog.Logger) *Service {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return &Service{source: source, logger: logger, limit: limit}
}

// Windows returns {studio -> sorted interval labels} for one date and
// duration.
func (s *Service) Windows(ctx context.Context, date string, durationMinutes int) (map[string][]string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: Дата должна быть в формате YYYY-MM-DD.", ErrBadRequest)
	}
	if durationMinutes%DurationStep != 0 ||
		durationMinutes < MinDurationMinutes ||
		durationMinutes > MaxDurationMinutes {
		return nil, fmt.Errorf("%w: Некорректная длительность бронирования.", ErrBadRequest)
	}

	rooms, err := s.source.Rooms(ctx)
	if err != nil {
		return nil, err
	}

	series := make([][]time.Time, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.limit)
	for i, room := range rooms {
		i, room := i, room
		g.Go(func() error {
			times, err := s.source.Slots(gctx, room, date)
			if err != nil {
				return err
			}
			series[i] = times
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	input := make([]slots.RoomSlots, 0, len(rooms))
	for i, room := range rooms {
		input = append(input, slots.RoomSlots{
			Studio:  room.StudioName,
			Subtype: room.SubserviceName,
			Room:    room.RoomName,
			Times:   series[i],
		})
	}

	result := slots.Aggregate(input, durationMinutes)
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: На выбранную дату нет подряд идущих свободных слотов выбранной длительности.", ErrNoWindows)
	}
	s.logger.Debug().Str("date", date).Int("duration", durationMinutes).
		Int("studios", len(result)).Msg("availability computed")
	return result, nil
}
