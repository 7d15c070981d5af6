package domain

import "time"

// ProbeStatus классифицирует исход одного замера с узла. Значения попадают
// в метку status прометеевских метрик и в JSON-ответ.
type ProbeStatus string

const (
	ProbeOK                 ProbeStatus = "ok"
	ProbeChannelUnavailable ProbeStatus = "channel_unavailable"
	ProbeSSHTimeout         ProbeStatus = "ssh_timeout"
	ProbePingError          ProbeStatus = "ping_error"
	ProbeNoRTT              ProbeStatus = "no_rtt"
)

// RTTStats holds the round-trip statistics of a successful ping, in
// milliseconds.
type RTTStats struct {
	Min  float64 `json:"min"`
	Avg  float64 `json:"avg"`
	Max  float64 `json:"max"`
	Mdev float64 `json:"mdev"`
}

// ProbeResult is the outcome of one ping executed from one node. RTT is
// set only when Status is ProbeOK; a failed node still yields a result so
// one bad vantage point never fails the whole request.
type ProbeResult struct {
	Node        RingNode      `json:"-"`
	Target      string        `json:"target"`
	Status      ProbeStatus   `json:"status"`
	RTT         *RTTStats     `json:"rtt,omitempty"`
	PacketsSent int           `json:"packets_sent"`
	PacketsRecv int           `json:"packets_recv"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"-"`
}

// OK reports whether the probe produced usable RTT statistics.
func (r ProbeResult) OK() bool {
	return r.Status == ProbeOK && r.RTT != nil
}

// ResultSet aggregates the per-node results of one probe request.
// Results keeps the order of the node set the probe was started with,
// independent of completion order.
type ResultSet struct {
	RequestID string        `json:"request_id"`
	Target    string        `json:"target"`
	Results   []ProbeResult `json:"results"`
}

// ProbeEvent плоская форма результата одного узла для публикации во
// внешнюю шину.
type ProbeEvent struct {
	RequestID   string      `json:"request_id"`
	Target      string      `json:"target"`
	Node        string      `json:"node"`
	Hostname    string      `json:"hostname"`
	ASN         string      `json:"asn"`
	City        string      `json:"city"`
	CountryCode string      `json:"countrycode"`
	Continent   string      `json:"continent"`
	Company     string      `json:"company"`
	Status      ProbeStatus `json:"status"`
	RTT         *RTTStats   `json:"rtt,omitempty"`
	Error       string      `json:"error,omitempty"`
	DurationMS  int64       `json:"duration_ms"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Events flattens the set into per-node wire events stamped with at.
func (s ResultSet) Events(at time.Time) []ProbeEvent {
	events := make([]ProbeEvent, 0, len(s.Results))
	for _, r := range s.Results {
		events = append(events, ProbeEvent{
			RequestID:   s.RequestID,
			Target:      s.Target,
			Node:        r.Node.ShortName(),
			Hostname:    r.Node.Hostname,
			ASN:         r.Node.ASN,
			City:        r.Node.City,
			CountryCode: r.Node.CountryCode,
			Continent:   r.Node.Continent,
			Company:     r.Node.Company,
			Status:      r.Status,
			RTT:         r.RTT,
			Error:       r.Error,
			DurationMS:  r.Duration.Milliseconds(),
			Timestamp:   at,
		})
	}
	return events
}
