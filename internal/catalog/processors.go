package catalog

import (
	"strings"

	"cmdbsync/internal/domain"
)

// propertyProcessors is the closed table of per-class property derivations
// run after parsing and before identity resolution
var propertyProcessors = map[string]domain.PropertyProcessor{
	"Dialog Modulator":    modulatorProperties,
	"Dialog Linux Server": linuxServerProperties,
}

// Redundancy roles of a modulator pair
const (
	RoleActive  = "1"
	RoleStandby = "2"
)

// modulatorProperties derives the redundancy role, HPS id and pool id of a
// 4IF modulator from its bracketed label. XIF modulators already carry them.
func modulatorProperties(props domain.Properties) domain.Properties {
	if device := props.Value("u_label_device"); strings.TrimSpace(device) != "" {
		if len(strings.Split(device, ".")) == 3 {
			return props
		}
	}

	base, marker, ok := splitModulatorLabel(props)
	if !ok {
		return props
	}

	out := props
	if base != "" {
		role := RoleStandby
		if marker == "Active" {
			role = RoleActive
		}
		out = out.With("u_role_id", role)
	}

	segments := strings.Split(base, ".")
	if len(segments) < 4 {
		return out
	}
	out = out.With("u_hps_id", strings.ReplaceAll(segments[1], "HPS-", ""))
	out = out.With("u_dp_id", strings.ReplaceAll(segments[2], "DP-", ""))
	return out
}

// linuxServerProperties falls back to the managing NMS when no hub NMS is known
func linuxServerProperties(props domain.Properties) domain.Properties {
	if props.Has("u_hub_nms") || !props.Has(domain.AttrNMSName) {
		return props
	}
	return props.With("u_hub_nms", props.Value(domain.AttrNMSName))
}
