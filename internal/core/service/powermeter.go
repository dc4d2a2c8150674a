package service

import (
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

// PowermeterValues maps the data of the configured extra powermeters. The root
// meter is already covered by the poll.
func PowermeterValues(data []e3dc.PowermeterData, configs []e3dc.PowermeterConfig) map[string]any {
	res := map[string]any{}
	for _, d := range data {
		if d.Type == e3dc.PowermeterTypeRoot {
			continue
		}
		for _, cfg := range configs {
			if cfg.Index != d.Index {
				continue
			}
			power, energy := d.Power.Sum(), d.Energy.Sum()
			if cfg.Negate {
				power, energy = -power, -energy
			}
			res[cfg.Key] = power
			res[cfg.Key+"-total"] = energy
		}
	}
	return res
}

// PowermeterKeys lists the keys of the configured powermeters.
func PowermeterKeys(configs []e3dc.PowermeterConfig) []string {
	var keys []string
	for _, cfg := range configs {
		keys = append(keys, cfg.Key, cfg.Key+"-total")
	}
	return keys
}
