// Package serials turns the upstream backend's inconsistent serial payload
// shapes into one uniform set. The classification is a best-effort
// heuristic over string patterns and role-named keys; nothing outside this
// package is allowed to inspect raw serial data.
package serials

import (
	"strings"

	"surveydesk/m/domain"
)

// NormalizedSet is the uniform shape every serial payload reduces to.
// Fields are left empty, never invented, when the payload has no data for
// them.
type NormalizedSet struct {
	Receivers     []string
	Datalogger    string
	ExternalRadio string
}

// Empty reports whether normalization produced nothing at all.
func (s NormalizedSet) Empty() bool {
	return len(s.Receivers) == 0 && s.Datalogger == "" && s.ExternalRadio == ""
}

// Normalize reduces a tool's serials field to a NormalizedSet, using the
// expected equipment type to decide how many receiver serials the set
// should carry.
func Normalize(payload domain.SerialPayload, equipmentType string) NormalizedSet {
	if payload.Keyed != nil {
		return fromKeyed(payload.Keyed, equipmentType)
	}
	return fromList(payload.List, equipmentType)
}

// fromList classifies a flat serial list by substring pattern. Entries
// looking like a datalogger ("DL-", "DATALOGGER") or an external radio
// ("ER-", "RADIO", "EXTERNAL") claim those roles; everything else is a
// receiver candidate in original order. A serial that merely happens to
// contain one of the markers will be misclassified; the upstream backend
// would need to tag roles explicitly to close that hole.
func fromList(list []string, equipmentType string) NormalizedSet {
	var out NormalizedSet
	var receivers []string
	for _, serial := range list {
		upper := strings.ToUpper(serial)
		switch {
		case out.Datalogger == "" && (strings.Contains(upper, "DL-") || strings.Contains(upper, "DATALOGGER")):
			out.Datalogger = serial
		case out.ExternalRadio == "" && (strings.Contains(upper, "ER-") || strings.Contains(upper, "RADIO") || strings.Contains(upper, "EXTERNAL")):
			out.ExternalRadio = serial
		default:
			receivers = append(receivers, serial)
		}
	}

	switch equipmentType {
	case domain.TypeBaseRoverCombo:
		if len(receivers) > 2 {
			receivers = receivers[:2]
		}
		out.Receivers = receivers
		// Positional fallback for payloads where nothing pattern-matched:
		// a combo set is conventionally listed as receiver, receiver,
		// datalogger, radio.
		if out.Datalogger == "" && len(list) >= 3 {
			out.Datalogger = list[2]
		}
		if out.ExternalRadio == "" && len(list) >= 4 {
			out.ExternalRadio = list[3]
		}
	case domain.TypeBaseOnly, domain.TypeRoverOnly:
		// Single-receiver sets carry exactly one serial and no companions.
		out.Datalogger = ""
		out.ExternalRadio = ""
		if len(receivers) > 0 {
			out.Receivers = receivers[:1]
		}
	default:
		out.Receivers = receivers
	}
	return out
}

// fromKeyed reads a role-keyed serial object, tolerating the key spellings
// the backend has been seen to use.
func fromKeyed(keyed map[string]string, equipmentType string) NormalizedSet {
	var out NormalizedSet
	out.Datalogger = firstValue(keyed, "data_logger", "datalogger", "dl")
	out.ExternalRadio = firstValue(keyed, "external_radio", "radio", "externalRadio", "er")

	if equipmentType == domain.TypeBaseRoverCombo {
		first := strings.TrimSpace(keyed["receiver1"])
		second := strings.TrimSpace(keyed["receiver2"])
		if first != "" || second != "" {
			for _, serial := range []string{first, second} {
				if serial != "" {
					out.Receivers = append(out.Receivers, serial)
				}
			}
			return out
		}
		// Last resort: some payloads cram both receivers into one
		// comma-separated "receiver" value.
		for _, part := range strings.Split(keyed["receiver"], ",") {
			if part = strings.TrimSpace(part); part != "" {
				out.Receivers = append(out.Receivers, part)
			}
		}
		return out
	}

	if serial := firstValue(keyed, "receiver", "receiver1"); serial != "" {
		out.Receivers = []string{serial}
	}
	return out
}

func firstValue(keyed map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(keyed[key]); value != "" {
			return value
		}
	}
	return ""
}
