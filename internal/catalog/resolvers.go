package catalog

import (
	"strings"

	"cmdbsync/internal/domain"
)

// customResolvers is the closed table of class-specific identity functions
// used by NamingByCustomFunction
var customResolvers = map[string]domain.IdentityFunc{
	"Dialog Satellite Network": satelliteNetworkID,
	"Dialog Linux Server":      linuxServerID,
	"Dialog Switch":            switchID,
	"Dialog Modulator":         modulatorID,
	"Dialog Demodulator":       demodulatorID,
}

func join(parts ...string) string {
	return strings.Join(parts, ".")
}

// satelliteNetworkID names a satellite network after its hub module: S.<hps>.<label>
func satelliteNetworkID(props domain.Properties, scope string) domain.Resolution {
	if !props.Has(domain.AttrLabel) || !props.Has("u_hps_name") {
		return domain.Unresolved("label or hps name missing")
	}
	return domain.Resolution{ID: join(scope, props.Value("u_hps_name"), props.Value(domain.AttrLabel))}
}

// linuxServerID prefers the hub name (without the enclosure suffix), then the hub NMS
func linuxServerID(props domain.Properties, scope string) domain.Resolution {
	if !props.Has(domain.AttrLabel) {
		return domain.Unresolved("label missing")
	}
	label := props.Value(domain.AttrLabel)

	if props.Has("u_hub_name") {
		hub := strings.ReplaceAll(props.Value("u_hub_name"), ".ENC", "")
		return domain.Resolution{ID: join(scope, hub, label)}
	}
	if props.Has("u_hub_nms") {
		return domain.Resolution{ID: join(scope, props.Value("u_hub_nms"), label)}
	}
	return domain.Unresolved("hub name and hub nms missing")
}

// switchID takes the access switch label, falling back to the RF switch label
func switchID(props domain.Properties, scope string) domain.Resolution {
	for _, name := range []string{"u_label_access", "u_label_rf"} {
		if props.Has(name) {
			label := props.Value(name)
			return domain.Resolution{ID: join(scope, label), Label: label, Corrected: true}
		}
	}
	return domain.Unresolved("no access or rf switch label")
}

// modulatorID handles both workflows: a three-part XIF device label that must
// name a MOD- device, or a 4IF MCM7500/M6100 label carrying a bracketed
// redundancy marker ("HUB.HPS-1.DP-2.MOD-3 [Active]").
func modulatorID(props domain.Properties, scope string) domain.Resolution {
	if device := props.Value("u_label_device"); !domain.IsSentinel(device) {
		if len(strings.Split(device, ".")) == 3 {
			if !strings.Contains(device, "MOD-") {
				return domain.Unresolved("device label is not a modulator")
			}
			return domain.Resolution{ID: join(scope, device), Label: device, Corrected: true}
		}
	}

	base, _, ok := splitModulatorLabel(props)
	if !ok {
		return domain.Unresolved("no bracketed modulator label")
	}
	return domain.Resolution{ID: join(scope, base), Label: base, Corrected: true}
}

// demodulatorID rejects labels that belong to a modulator device
func demodulatorID(props domain.Properties, scope string) domain.Resolution {
	if !props.Has(domain.AttrLabel) {
		return domain.Unresolved("label missing")
	}
	label := props.Value(domain.AttrLabel)
	if strings.Contains(label, ".MOD-") {
		return domain.Unresolved("label belongs to a modulator")
	}
	return domain.Resolution{ID: join(scope, label)}
}

// modulatorLabel returns the non-blank 4IF label. The M6100 label wins when
// both are set.
func modulatorLabel(props domain.Properties) string {
	for _, name := range []string{"u_label_m6100", "u_label_mcm7500"} {
		if v := props.Value(name); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// splitModulatorLabel splits "<base> [<marker>]" into its trimmed base and marker
func splitModulatorLabel(props domain.Properties) (base, marker string, ok bool) {
	label := modulatorLabel(props)
	if label == "" {
		return "", "", false
	}
	parts := strings.Split(label, "[")
	if len(parts) < 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.ReplaceAll(parts[1], "]", ""), true
}
