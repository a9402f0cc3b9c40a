package identity

import (
	"testing"

	"cmdbsync/internal/domain"
)

type resolverMap map[string]domain.IdentityFunc

func (m resolverMap) Resolver(class string) (domain.IdentityFunc, bool) {
	fn, ok := m[class]
	return fn, ok
}

func schema(naming domain.NamingStrategy) *domain.ClassSchema {
	return &domain.ClassSchema{Name: "Device", Naming: naming}
}

func labelled(label string) domain.Properties {
	return domain.Properties{{Name: domain.AttrLabel, Value: label}}
}

func TestResolve(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		name   string
		naming domain.NamingStrategy
		key    string
		props  domain.Properties
		scope  string
		want   string
		reason string
	}{
		{"primary key", domain.NamingByPrimaryKey, "42", nil, "S", "S.42", ""},
		{"primary key blank", domain.NamingByPrimaryKey, "  ", nil, "S", "", ReasonBlankKey},
		{"primary key and label", domain.NamingByPrimaryKeyAndLabel, "42", labelled("L"), "S", "S.42.L", ""},
		{"primary key and missing label", domain.NamingByPrimaryKeyAndLabel, "42", nil, "S", "", ReasonMissingLabel},
		{"label", domain.NamingByLabel, "42", labelled("DeviceA"), "NMS1", "NMS1.DeviceA", ""},
		{"blank label", domain.NamingByLabel, "42", labelled("  "), "S", "", ReasonMissingLabel},
		{"sentinel label", domain.NamingByLabel, "42", labelled("NA"), "S", "", ReasonMissingLabel},
		{"label and primary key", domain.NamingByLabelAndPrimaryKey, "42", labelled("L"), "S", "S.L.42", ""},
		{"label and missing key", domain.NamingByLabelAndPrimaryKey, "", labelled("L"), "S", "", ReasonBlankKey},
		{"blank scope", domain.NamingByPrimaryKey, "42", nil, " ", "", ReasonBlankScope},
		{"empty scope with label", domain.NamingByLabel, "42", labelled("L"), "", "", ReasonBlankScope},
		{"custom without table", domain.NamingByCustomFunction, "42", labelled("L"), "S", "", ReasonMissingResolver},
		{"unknown strategy", domain.NamingUnknown, "42", labelled("L"), "S", "", ReasonUnknownStrategy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(schema(tt.naming), tt.key, tt.props, tt.scope)
			if res.ID != tt.want {
				t.Errorf("expected ID %q, got %q", tt.want, res.ID)
			}
			if res.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, res.Reason)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := NewResolver(resolverMap{
		"Device": func(props domain.Properties, scope string) domain.Resolution {
			return domain.Resolution{ID: scope + "." + props.Value("u_serial")}
		},
	})
	props := domain.Properties{{Name: domain.AttrLabel, Value: "L"}, {Name: "u_serial", Value: "SN1"}}

	strategies := []domain.NamingStrategy{
		domain.NamingByPrimaryKey,
		domain.NamingByPrimaryKeyAndLabel,
		domain.NamingByLabel,
		domain.NamingByLabelAndPrimaryKey,
		domain.NamingByCustomFunction,
	}
	for _, naming := range strategies {
		first := r.Resolve(schema(naming), "42", props, "S")
		for i := 0; i < 5; i++ {
			again := r.Resolve(schema(naming), "42", props, "S")
			if again != first {
				t.Fatalf("%s: expected %+v, got %+v", naming, first, again)
			}
		}
		if first.ID == "" {
			t.Errorf("%s: expected an ID", naming)
		}
	}
}

func TestResolveCustom(t *testing.T) {
	r := NewResolver(resolverMap{
		"Device": func(props domain.Properties, scope string) domain.Resolution {
			label := props.Value("u_label_access")
			if label == "" {
				return domain.Resolution{ID: "   "}
			}
			return domain.Resolution{ID: scope + "." + label, Label: label, Corrected: true}
		},
	})

	t.Run("returns corrected label without touching properties", func(t *testing.T) {
		props := domain.Properties{{Name: domain.AttrLabel, Value: ""}, {Name: "u_label_access", Value: "ACC"}}
		res := r.Resolve(schema(domain.NamingByCustomFunction), "1", props, "S")
		if res.ID != "S.ACC" || !res.Corrected || res.Label != "ACC" {
			t.Errorf("unexpected resolution %+v", res)
		}
		if props.Value(domain.AttrLabel) != "" {
			t.Error("expected properties to be untouched")
		}
	})

	t.Run("blank custom IDs fail with a reason", func(t *testing.T) {
		res := r.Resolve(schema(domain.NamingByCustomFunction), "1", nil, "S")
		if res.ID != "" || res.Reason == "" {
			t.Errorf("expected failed resolution, got %+v", res)
		}
	})

	t.Run("unknown class has no resolver", func(t *testing.T) {
		s := &domain.ClassSchema{Name: "Other", Naming: domain.NamingByCustomFunction}
		res := r.Resolve(s, "1", nil, "S")
		if res.Reason != ReasonMissingResolver {
			t.Errorf("expected missing resolver, got %+v", res)
		}
	})
}
