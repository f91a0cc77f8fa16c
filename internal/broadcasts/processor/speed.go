package processor

import "wa-server/internal/store"

const defaultDelaySeconds = 20

// DelaySeconds maps a send-speed policy to an inter-message delay. Advisory
// only: the dispatch worker paces itself with this value, the engine never
// sleeps.
func DelaySeconds(sendSpeed string, customDelaySeconds *int) int {
	switch sendSpeed {
	case store.SendSpeedSlow:
		return 30
	case store.SendSpeedNormal:
		return 20
	case store.SendSpeedFast:
		return 10
	case store.SendSpeedCustom:
		if customDelaySeconds != nil && *customDelaySeconds > 0 {
			return *customDelaySeconds
		}
		return defaultDelaySeconds
	default:
		return defaultDelaySeconds
	}
}
