// Package bridgetest provides in-memory test doubles for exercising
// pkg/bridge logic without a running NATS server.
package bridgetest

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrStreamNotFound mirrors the sentinel jetstream returns from Stream when
// no stream by that name exists.
var ErrStreamNotFound = errors.New("bridgetest: stream not found")

// FakeStreamManager is an in-memory implementation of the narrow
// stream-management surface pkg/bridge's topology Reconciler depends on,
// standing in for jetstream.JetStream in unit tests.
type FakeStreamManager struct {
	streams    map[string]*jetstream.StreamInfo
	createErrs []error
	updateErrs []error
}

// NewFakeStreamManager returns an empty FakeStreamManager, optionally
// pre-populated with foreign streams (name -> subjects) to simulate
// existing topology owned by other bridges.
func NewFakeStreamManager(foreign map[string][]string) *FakeStreamManager {
	m := &FakeStreamManager{streams: make(map[string]*jetstream.StreamInfo)}
	for name, subjects := range foreign {
		m.streams[name] = &jetstream.StreamInfo{
			Config: jetstream.StreamConfig{Name: name, Subjects: subjects},
		}
	}
	return m
}

func (m *FakeStreamManager) Stream(_ context.Context, name string) (jetstream.Stream, error) {
	info, ok := m.streams[name]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return &fakeStream{info: info}, nil
}

func (m *FakeStreamManager) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return nil, err
	}
	info := &jetstream.StreamInfo{Config: cfg}
	m.streams[cfg.Name] = info
	return &fakeStream{info: info}, nil
}

func (m *FakeStreamManager) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	if len(m.updateErrs) > 0 {
		err := m.updateErrs[0]
		m.updateErrs = m.updateErrs[1:]
		return nil, err
	}
	info := &jetstream.StreamInfo{Config: cfg}
	m.streams[cfg.Name] = info
	return &fakeStream{info: info}, nil
}

// FailNextCreate queues err to be returned by the next CreateStream call
// instead of succeeding, so tests can exercise the Reconciler's
// overlap-retry handling.
func (m *FakeStreamManager) FailNextCreate(err error) {
	m.createErrs = append(m.createErrs, err)
}

// FailNextUpdate queues err to be returned by the next UpdateStream call.
func (m *FakeStreamManager) FailNextUpdate(err error) {
	m.updateErrs = append(m.updateErrs, err)
}

func (m *FakeStreamManager) StreamNames(_ context.Context) jetstream.StreamNameLister {
	names := make(chan string, len(m.streams))
	for name := range m.streams {
		names <- name
	}
	close(names)
	return &fakeStreamNameLister{names: names}
}

// SubjectsOf returns the subjects currently configured on the named
// stream, for test assertions.
func (m *FakeStreamManager) SubjectsOf(name string) []string {
	info, ok := m.streams[name]
	if !ok {
		return nil
	}
	return info.Config.Subjects
}

type fakeStream struct {
	info *jetstream.StreamInfo
	jetstream.Stream
}

func (s *fakeStream) Info(context.Context, ...jetstream.StreamInfoOpt) (*jetstream.StreamInfo, error) {
	return s.info, nil
}

type fakeStreamNameLister struct {
	names chan string
}

func (l *fakeStreamNameLister) Name() <-chan string { return l.names }
func (l *fakeStreamNameLister) Err() error           { return nil }
