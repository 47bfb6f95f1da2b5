package stake

import "math/big"

func windowStart(now, retention uint64) uint64 {
	if retention >= now {
		return 0
	}
	return now - retention
}

// record appends the post-change balance and drops entries that can no longer
// influence any future window.
func record(history []HistoryEntry, now uint64, balance *big.Int, retention uint64) []HistoryEntry {
	history = append(history, HistoryEntry{At: now, Balance: new(big.Int).Set(balance)})
	return compact(history, windowStart(now, retention))
}

// compact keeps the newest entry at or before start plus everything after it.
// Future windows never start earlier than start, so older entries are dead.
func compact(history []HistoryEntry, start uint64) []HistoryEntry {
	anchor := -1
	for i, entry := range history {
		if entry.At > start {
			break
		}
		anchor = i
	}
	if anchor <= 0 {
		return history
	}
	return append([]HistoryEntry(nil), history[anchor:]...)
}

// minBalance returns the lowest balance held over [start, now]. The balance
// before the first recorded entry is zero.
func minBalance(history []HistoryEntry, start uint64) *big.Int {
	low := big.NewInt(0)
	anchored := false
	for _, entry := range history {
		if entry.At <= start {
			low = new(big.Int).Set(entry.Balance)
			anchored = true
			continue
		}
		if !anchored {
			// The window opens before the first stake.
			return big.NewInt(0)
		}
		if entry.Balance.Cmp(low) < 0 {
			low = new(big.Int).Set(entry.Balance)
		}
	}
	return low
}
