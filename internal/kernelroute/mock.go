package kernelroute

import (
	"sync"

	"github.com/benpicco/olsrv2d/internal/addr"
)

// Call records one Set invocation for test verification.
type Call struct {
	Req *Request
	Set bool
}

// Mock is an in-process Channel for tests and for platforms without a
// netlink build: Set succeeds immediately (synchronously invoking Done
// with a nil error) unless the test has pre-armed a failure via Fail.
type Mock struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
	rows  []*Request // installed routes, for Query to replay
}

// NewMock returns an empty Mock channel.
func NewMock() *Mock {
	return &Mock{fail: map[string]error{}}
}

// Fail arms the next Set for a request whose ID equals id to complete
// with err instead of succeeding.
func (m *Mock) Fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[id] = err
}

func (m *Mock) Set(req *Request, set bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Req: req, Set: set})
	err, armed := m.fail[req.ID]
	if armed {
		delete(m.fail, req.ID)
	}
	if set {
		m.rows = append(m.rows, req)
	} else {
		for i, r := range m.rows {
			if r.ID == req.ID {
				m.rows = append(m.rows[:i], m.rows[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if req.Done != nil {
		req.Done(req, err)
	}
	return nil
}

func (m *Mock) Query(family addr.Family) (<-chan *Request, error) {
	m.mu.Lock()
	snapshot := make([]*Request, 0, len(m.rows))
	for _, r := range m.rows {
		if r.Family == family {
			snapshot = append(snapshot, r)
		}
	}
	m.mu.Unlock()

	out := make(chan *Request, len(snapshot))
	for _, r := range snapshot {
		out <- r
	}
	close(out)
	return out, nil
}

func (m *Mock) Close() error { return nil }

// Calls returns every Set invocation observed so far, in order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
