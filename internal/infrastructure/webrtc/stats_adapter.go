package webrtc

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"callpilot/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// VideoClockRate is the RTP clock rate used to convert RTCP jitter.
const VideoClockRate = 90000

// statsAccumulator folds individual stats entries into a domain report.
type statsAccumulator struct {
	entries int

	packetsReceived uint64
	packetsLost     int64
	jitterSum       float64 // seconds
	jitterCount     int

	fractionLostSum   float64
	fractionLostCount int

	rtt      time.Duration
	rttFound bool
}

func (a *statsAccumulator) add(stat webrtc.Stats) {
	a.entries++

	switch s := stat.(type) {
	case webrtc.InboundRTPStreamStats:
		a.inbound(s)
	case *webrtc.InboundRTPStreamStats:
		a.inbound(*s)
	case webrtc.RemoteInboundRTPStreamStats:
		a.remoteInbound(s)
	case *webrtc.RemoteInboundRTPStreamStats:
		a.remoteInbound(*s)
	case webrtc.ICECandidatePairStats:
		a.candidatePair(s)
	case *webrtc.ICECandidatePairStats:
		a.candidatePair(*s)
	}
}

func (a *statsAccumulator) inbound(s webrtc.InboundRTPStreamStats) {
	a.packetsReceived += uint64(s.PacketsReceived)
	a.packetsLost += int64(s.PacketsLost)
	a.jitterSum += s.Jitter
	a.jitterCount++
}

func (a *statsAccumulator) remoteInbound(s webrtc.RemoteInboundRTPStreamStats) {
	a.fractionLostSum += s.FractionLost
	a.fractionLostCount++
	if s.RoundTripTime > 0 && !a.rttFound {
		a.rtt = secondsToDuration(s.RoundTripTime)
		a.rttFound = true
	}
}

func (a *statsAccumulator) candidatePair(s webrtc.ICECandidatePairStats) {
	// the nominated pair carries the transport RTT and wins over RTCP
	if s.Nominated && s.CurrentRoundTripTime > 0 {
		a.rtt = secondsToDuration(s.CurrentRoundTripTime)
		a.rttFound = true
	}
}

func (a *statsAccumulator) report(at time.Time) *domain.StatsReport {
	r := &domain.StatsReport{Entries: a.entries, Timestamp: at}

	switch {
	case a.packetsReceived+uint64(max(a.packetsLost, 0)) > 0:
		lost := float64(max(a.packetsLost, 0))
		r.PacketLoss = lost / (float64(a.packetsReceived) + lost)
		r.HasNetworkMetrics = true
	case a.fractionLostCount > 0:
		r.PacketLoss = a.fractionLostSum / float64(a.fractionLostCount)
		r.HasNetworkMetrics = true
	}
	if a.jitterCount > 0 {
		r.Jitter = secondsToDuration(a.jitterSum / float64(a.jitterCount))
		r.HasNetworkMetrics = true
	}
	if a.rttFound {
		r.RoundTrip = a.rtt
		r.HasNetworkMetrics = true
	}
	return r
}

// ReportFromStats summarizes a pion stats report.
func ReportFromStats(stats webrtc.StatsReport, at time.Time) *domain.StatsReport {
	var acc statsAccumulator
	for _, s := range stats {
		acc.add(s)
	}
	return acc.report(at)
}

// ParseBrowserStats decodes the JSON array a browser produces from
// RTCPeerConnection.getStats(). Unknown entry types are counted but
// otherwise ignored.
func ParseBrowserStats(data []byte, at time.Time) (*domain.StatsReport, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}

	var acc statsAccumulator
	for i, entry := range raw {
		var head struct {
			Type webrtc.StatsType `json:"type"`
		}
		if err := json.Unmarshal(entry, &head); err != nil {
			return nil, fmt.Errorf("decode stats entry %d: %w", i, err)
		}

		var stat webrtc.Stats
		var err error
		switch head.Type {
		case webrtc.StatsTypeInboundRTP:
			var s webrtc.InboundRTPStreamStats
			err = json.Unmarshal(entry, &s)
			stat = s
		case webrtc.StatsTypeRemoteInboundRTP:
			var s webrtc.RemoteInboundRTPStreamStats
			err = json.Unmarshal(entry, &s)
			stat = s
		case webrtc.StatsTypeCandidatePair:
			var s webrtc.ICECandidatePairStats
			err = json.Unmarshal(entry, &s)
			stat = s
		default:
			acc.entries++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s entry %d: %w", head.Type, i, err)
		}
		acc.add(stat)
	}
	return acc.report(at), nil
}

// ReportFromRTCP summarizes the reception reports of a compound RTCP
// packet. Jitter is converted with clockRate; RTT is derived from LSR and
// DLSR against the arrival time.
func ReportFromRTCP(packets []rtcp.Packet, clockRate uint32, arrival time.Time) *domain.StatsReport {
	if clockRate == 0 {
		clockRate = VideoClockRate
	}

	r := &domain.StatsReport{Entries: len(packets), Timestamp: arrival}
	var (
		fractionSum float64
		jitterSum   float64
		rttSum      time.Duration
		reports     int
		rtts        int
		nacks       int
	)

	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				fractionSum += float64(report.FractionLost) / 256
				jitterSum += float64(report.Jitter) / float64(clockRate)
				reports++

				if rtt, ok := roundTrip(report, arrival); ok {
					rttSum += rtt
					rtts++
				}
			}
		case *rtcp.TransportLayerNack:
			nacks += len(p.Nacks)
		}
	}

	if reports > 0 {
		r.PacketLoss = fractionSum / float64(reports)
		r.Jitter = secondsToDuration(jitterSum / float64(reports))
		r.HasNetworkMetrics = true
	}
	if rtts > 0 {
		r.RoundTrip = rttSum / time.Duration(rtts)
	}
	if reports == 0 && nacks > 0 {
		// NACKs alone prove loss without quantifying it
		r.PacketLoss = 0.05
		r.HasNetworkMetrics = true
	}
	return r
}

// ParseRTCP decodes a compound RTCP packet and summarizes it.
func ParseRTCP(data []byte, clockRate uint32, arrival time.Time) (*domain.StatsReport, error) {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode rtcp: %w", err)
	}
	return ReportFromRTCP(packets, clockRate, arrival), nil
}

// roundTrip computes RTT from a reception report: arrival minus LSR minus
// DLSR, all in the middle 32 bits of NTP time (1/65536 s).
func roundTrip(report rtcp.ReceptionReport, arrival time.Time) (time.Duration, bool) {
	if report.LastSenderReport == 0 {
		return 0, false
	}
	now := ntpMiddle(arrival)
	rtt := now - report.LastSenderReport - report.Delay
	// wrapped: LSR is in the future or the delay is bogus
	if rtt > 1<<31 {
		return 0, false
	}
	return time.Duration(rtt) * time.Second / 65536, true
}

const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970

func ntpMiddle(t time.Time) uint32 {
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	ntp := secs<<32 | frac
	return uint32(ntp >> 16)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
