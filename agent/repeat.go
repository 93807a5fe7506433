package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// callSignature fingerprints a tool call by name and arguments. Two calls
// collide only when the model is asking for the same thing again.
func callSignature(name string, arguments json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(arguments)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// lastCallSignatures collects the signatures of every tool call in the
// history, in chronological order, keeping only the trailing count.
func lastCallSignatures(history []Turn, count int) []string {
	var sigs []string
	for _, turn := range history {
		if turn.Kind != TurnAssistant || turn.Assistant == nil {
			continue
		}
		for _, tc := range turn.Assistant.ToolCalls {
			sigs = append(sigs, callSignature(tc.Name, tc.Arguments))
		}
	}
	if len(sigs) > count {
		sigs = sigs[len(sigs)-count:]
	}
	return sigs
}

// hasPeriod reports whether sigs repeats with the given period: every
// element equals the one period positions before it.
func hasPeriod(sigs []string, period int) bool {
	for i := period; i < len(sigs); i++ {
		if sigs[i] != sigs[i-period] {
			return false
		}
	}
	return true
}

// DetectRepeat reports whether the last windowSize tool calls cycle with a
// period of 1, 2, or 3: a sign the model is stuck. The session surfaces
// this as a warning event only; the conversation itself is never mutated.
func DetectRepeat(history []Turn, windowSize int) bool {
	sigs := lastCallSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}
	for period := 1; period <= 3 && period < windowSize; period++ {
		if windowSize%period != 0 {
			continue
		}
		if hasPeriod(sigs, period) {
			return true
		}
	}
	return false
}
