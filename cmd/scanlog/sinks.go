package main

import (
	"context"
	"fmt"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/mqttsink"
	"github.com/banshee-data/scanlog/internal/pointcloud"
	"github.com/banshee-data/scanlog/internal/replay"
	"github.com/banshee-data/scanlog/internal/scanstore"
)

// sinkFlags are the subscriber outputs shared by replay and acquire.
type sinkFlags struct {
	dbPath     string
	mqttBroker string
	mqttTopic  string
	plotPath   string
	plotEvery  int
}

// sinks holds the subscribers attached to a hub.
type sinks struct {
	store     *scanstore.Store
	session   string
	mqtt      *mqttsink.Sink
	snapshots *pointcloud.Snapshotter

	closers []func()
}

func (s *sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// history reads the latest scans of the current session from the store.
func (s *sinks) history() func(limit int) ([]lms.ScanMessage, error) {
	if s.store == nil {
		return nil
	}
	return func(limit int) ([]lms.ScanMessage, error) {
		return s.store.LatestScans(s.session, limit)
	}
}

// attachSinks subscribes every configured output to hub. info seeds the
// stored session row and the plot geometry. When geom is set it is consulted
// before every snapshot.
func attachSinks(ctx context.Context, hub *lms.Hub, f sinkFlags, source string, startedAt float64, info lms.DeviceInfo, geom func() pointcloud.Geometry) (*sinks, error) {
	s := &sinks{}

	if f.dbPath != "" {
		store, err := scanstore.Open(f.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open scan store: %w", err)
		}
		s.closers = append(s.closers, func() { store.Close() })
		session, err := store.BeginSession(scanstore.SessionInfo{
			Source:         source,
			StartedAt:      startedAt,
			Baud:           info.Baud,
			MeasuringMode:  info.MeasuringMode,
			MeasuringUnits: info.MeasuringUnits,
			ScanResolution: info.ScanResolution,
			ScanAngle:      info.ScanAngle,
			MaxDistance:    info.MaxDistance,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.store, s.session = store, session
		id := hub.Subscribe("scanstore", store.Subscriber(session))
		s.closers = append(s.closers, func() { hub.Unsubscribe(id) })
	}

	if f.mqttBroker != "" {
		sink, disconnect, err := mqttsink.Dial(ctx, mqttsink.Options{Broker: f.mqttBroker, Topic: f.mqttTopic})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, disconnect)
		s.mqtt = sink
		id := hub.Subscribe("mqtt", sink.Handle)
		s.closers = append(s.closers, func() { hub.Unsubscribe(id) })
	}

	if f.plotPath != "" {
		r := &pointcloud.PNGRenderer{Path: f.plotPath, Size: 6 * vg.Inch}
		s.snapshots = pointcloud.NewSnapshotter(r, pointcloud.GeometryFrom(info), f.plotEvery)
		snap := s.snapshots
		id := hub.Subscribe("plot", func(m lms.ScanMessage) {
			if geom != nil {
				snap.SetGeometry(geom())
			}
			snap.Handle(m)
		})
		s.closers = append(s.closers, func() { hub.Unsubscribe(id) })
	}
	return s, nil
}

// geometryFromState adapts the configuration recovered during playback.
func geometryFromState(st replay.DeviceState) pointcloud.Geometry {
	return pointcloud.Geometry{
		ScanAngle:      st.ScanAngle,
		ScanResolution: st.ScanResolution,
		MeasuringUnits: st.MeasuringUnits,
		MaxDistance:    st.MaxDistance,
	}
}
