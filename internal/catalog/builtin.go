package catalog

import "cmdbsync/internal/domain"

type attrFlag uint8

const (
	monitored attrFlag = 1 << iota
	classField
	identity
)

// col declares an attribute read from a table column. "pk" and "fk" take the key roles.
func col(name string, column int, flags ...attrFlag) domain.AttributeDef {
	var f attrFlag
	for _, fl := range flags {
		f |= fl
	}
	def := domain.AttributeDef{
		Name:          name,
		Column:        column,
		Monitored:     f&monitored != 0,
		ClassField:    f&classField != 0,
		IdentityInput: f&identity != 0,
	}
	switch name {
	case domain.AttrPrimaryKey:
		def.Role = domain.RolePrimaryKey
	case domain.AttrForeignKey:
		def.Role = domain.RoleForeignKey
	}
	return def
}

// injected declares an attribute filled outside the row data
func injected(name string, flags ...attrFlag) domain.AttributeDef {
	return col(name, domain.InjectedColumn, flags...)
}

// table assigns a source table to a group of attributes
func table(id int, attrs ...domain.AttributeDef) []domain.AttributeDef {
	for i := range attrs {
		attrs[i].TableID = id
	}
	return attrs
}

func attributes(tables ...[]domain.AttributeDef) []domain.AttributeDef {
	var all []domain.AttributeDef
	for _, t := range tables {
		all = append(all, t...)
	}
	return all
}

func link(child, parent string) domain.JoinLink {
	return domain.JoinLink{ChildAttr: child, ParentAttr: parent}
}

func rule(child, parent, label string, fromParent bool, links ...domain.JoinLink) domain.RelationshipRule {
	return domain.RelationshipRule{
		ParentClass:      parent,
		ChildClass:       child,
		Links:            links,
		Label:            label,
		MappedFromParent: fromParent,
	}
}

// Relationship labels, "<parent descriptor>::<child descriptor>"
const (
	LabelManagedBy    = "Managed by::Manages"
	LabelConnectedBy  = "Connected by::Connects"
	LabelReceivesFrom = "Receives data from::Sends data to"
	LabelDependsOn    = "Depends on::Used by"
	LabelLocatedIn    = "Located in::Houses"
	LabelDRProvidedBy = "DR provided by::Provides DR for"
	LabelContains     = "Contains::Contained By"
	LabelUses         = "Uses::Used by"
)

// Builtin returns the catalog of natively supported integrations
func Builtin() *Catalog {
	c, err := New(BuiltinIntegrations())
	if err != nil {
		panic("catalog: invalid builtin mappings: " + err.Error())
	}
	return c
}

// BuiltinIntegrations returns a fresh copy of the native mapping definitions
func BuiltinIntegrations() []Integration {
	return []Integration{
		{Name: "iDirect Evolution", Connectors: []Connector{evolutionPlatform()}},
		{Name: "Newtec Dialog", Connectors: []Connector{dialogTimeSeries(), dialogInfrastructure()}},
	}
}

func evolutionPlatform() Connector {
	nms := injected(domain.AttrNMSName, identity)

	return Connector{
		Protocol: "iDirect Platform",
		Classes: []domain.ClassSchema{
			{
				Name:        "Evolution NMS",
				TargetTable: "u_cmdb_ci_appl_nms_evolution",
				IsParent:    true,
				Naming:      domain.NamingByPrimaryKey,
			},
			{
				Name:        "Evolution Remote",
				TargetTable: "u_cmdb_ci_modem_evolution_remote",
				Naming:      domain.NamingByLabel,
				Attributes: table(300,
					col("pk", 0),
					col("u_label", 1, identity),
					col("u_status", 6, monitored),
					col("u_network_id", 9, monitored),
					col("u_network_name", 10),
					col("u_inroute_group_id", 11),
					col("u_inroute_group", 12),
					col("u_customer_id", 13),
					col("u_active_sw_version", 14),
					col("u_hw_type", 15),
					col("u_pp_id", 16),
					col("serial_number", 17, classField),
					nms,
				),
			},
			{
				Name:        "Evolution Linecard",
				TargetTable: "u_cmdb_ci_modem_evolution_linecard",
				Naming:      domain.NamingByLabel,
				Attributes: attributes(
					table(400,
						col("pk", 0),
						col("u_label", 1, identity),
						col("u_type", 3, identity),
						col("u_status", 4, monitored),
						col("u_inroute_group", 8),
						col("u_customer_id", 9),
						col("u_active_sw_version", 10),
						col("u_hw_type", 11),
						col("u_pp_id", 12),
						col("serial_number", 13, classField),
						col("u_chassis_id", 14),
						col("u_chassis_slot_number", 15),
						col("u_network_id", 16, monitored),
						nms,
					),
					table(1700,
						col("u_chassis_slot_id", 1, monitored),
						col("fk", 6),
						col("u_redundancy_linecard", 8, monitored),
					),
				),
			},
			{
				Name:        "Evolution Network",
				TargetTable: "u_cmdb_ci_group_evolution_network",
				Naming:      domain.NamingByLabel,
				Attributes: attributes(
					table(600,
						col("pk", 0),
						col("u_network_id", 0),
						col("u_label", 1, identity),
						col("u_status", 3, monitored),
						col("u_teleport_id", 6),
						col("u_pp_id", 7),
						nms,
					),
					table(6000,
						col("pk", 0),
						col("u_network_pp_name", 30),
					),
				),
			},
			{
				Name:        "Evolution Chassis",
				TargetTable: "cmdb_ci_chassis",
				Naming:      domain.NamingByLabel,
				Attributes: table(1500,
					col("pk", 0),
					col("u_chassis_id", 0),
					col("u_label", 1, identity),
					col("serial_number", 2, classField),
					col("u_status", 3, monitored),
					col("u_nms_ip", 4),
					nms,
				),
			},
			{
				Name:        "Evolution Inroute Group",
				TargetTable: "u_cmdb_ci_evolution_inroute_group",
				Naming:      domain.NamingByLabel,
				Attributes: table(7400,
					col("pk", 0),
					col("u_label", 1, identity),
					col("u_network_id", 2, monitored),
					nms,
				),
			},
			{
				Name:        "Evolution Protocol Processor",
				TargetTable: "u_cmdb_ci_appl_evolution_pp",
				Naming:      domain.NamingByLabel,
				Attributes: table(6000,
					col("pk", 0),
					col("u_network_id", 0),
					col("u_label", 30, monitored),
					nms,
				),
			},
			{
				Name:        "Evolution Protocol Processor Blade",
				TargetTable: "u_cmdb_ci_appl_evolution_pp_blade",
				Naming:      domain.NamingByLabel,
				Attributes: table(6300,
					col("pk", 0),
					col("u_label", 1, identity),
					col("u_ppb_network_id", 2, monitored),
					nms,
				),
			},
			{
				Name:        "Evolution Teleport",
				TargetTable: "u_cmdb_ci_group_evolution_teleport",
				Naming:      domain.NamingByLabel,
				Attributes: table(6000,
					col("pk", 0),
					col("u_network_id", 0),
					col("u_label", 18, monitored, identity),
					nms,
				),
			},
		},
		Relationships: []domain.RelationshipRule{
			rule("Evolution NMS", "Evolution Remote", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Linecard", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Network", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Chassis", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Inroute Group", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Protocol Processor", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Protocol Processor Blade", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution NMS", "Evolution Teleport", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution Inroute Group", "Evolution Remote", LabelConnectedBy, true, link("", "u_inroute_group")),
			rule("Evolution Linecard", "Evolution Inroute Group", LabelConnectedBy, false, link("u_inroute_group", "")),
			rule("Evolution Remote", "Evolution Linecard", LabelReceivesFrom, false,
				link("u_network_id", "u_network_id"),
				link("", "u_type"),
			),
			rule("Evolution Network", "Evolution Linecard", LabelDependsOn, true, link("u_network_id", "u_chassis_slot_id")),
			rule("Evolution Chassis", "Evolution Linecard", LabelLocatedIn, true, link("u_chassis_id", "u_chassis_slot_id")),
			rule("Evolution Protocol Processor", "Evolution Network", LabelDependsOn, true, link("", "u_network_pp_name")),
			rule("Evolution Protocol Processor Blade", "Evolution Protocol Processor", LabelDependsOn, false, link("u_ppb_network_id", "u_network_id")),
			rule("Evolution Linecard", "Evolution Linecard", LabelDRProvidedBy, true, link("", "u_redundancy_linecard")),
			// one teleport per NMS holds every processor and chassis
			rule("Evolution Protocol Processor", "Evolution Teleport", LabelContains, true, link("u_nms_name", "u_nms_name")),
			rule("Evolution Chassis", "Evolution Teleport", LabelContains, true, link("u_nms_name", "u_nms_name")),
		},
	}
}

func dialogTimeSeries() Connector {
	nms := injected(domain.AttrNMSName, identity)

	return Connector{
		Protocol: "Newtec Dialog Time Series Database",
		Classes: []domain.ClassSchema{
			{
				Name:        "Dialog NMS",
				TargetTable: "u_cmdb_ci_appl_nms_dialog",
				IsParent:    true,
				Naming:      domain.NamingByPrimaryKey,
			},
			{
				Name:        "Dialog Remote",
				TargetTable: "u_cmdb_ci_modem_dialog_remote",
				Naming:      domain.NamingByLabel,
				Attributes: table(100,
					col("pk", 0),
					col("u_label", 1, identity),
					col("u_satnet", 44, monitored),
					nms,
				),
			},
			{
				Name:        "Dialog Satellite Network",
				TargetTable: "u_cmdb_ci_dialog_satellite_network",
				Naming:      domain.NamingByCustomFunction,
				Attributes: table(4300,
					col("pk", 0),
					col("u_beam_name", 4),
					col("u_hps_name", 22, monitored, identity),
					col("u_label", 26, identity),
					nms,
				),
			},
		},
		Relationships: []domain.RelationshipRule{
			rule("Dialog NMS", "Dialog Remote", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog NMS", "Dialog Satellite Network", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Remote", "Dialog Satellite Network", LabelReceivesFrom, false, link("u_satnet", "u_label")),
		},
	}
}

func dialogInfrastructure() Connector {
	nms := injected(domain.AttrNMSName, identity)
	// corrected by the class resolver
	label := injected(domain.AttrLabel, identity)
	// supplementary chain tables shared by modulators and switches
	chains := func() []domain.AttributeDef {
		return attributes(
			table(3200,
				col("u_label_1_1", 4),
				col("u_chain_id", 8),
			),
			table(3000,
				col("u_hps_chain", 4),
				col("u_active_chain", 5),
			),
		)
	}

	return Connector{
		Protocol: "Newtec Dialog Infrastructure",
		Classes: []domain.ClassSchema{
			{
				Name:        "Dialog Hub",
				TargetTable: "u_cmdb_ci_dialog_hub",
				IsParent:    true,
				Naming:      domain.NamingByLabel,
			},
			{
				Name:        "Dialog Modulator",
				TargetTable: "u_cmdb_ci_dialog_modulator",
				Naming:      domain.NamingByCustomFunction,
				Attributes: attributes(
					table(3100,
						col("pk", 0),
						label,
						col("u_label_device", 4, identity),
						col("u_hps_id", 6),
						col("u_role_id", 7, monitored),
						col("u_dp_id", 9),
						nms,
					),
					table(2300,
						col("pk", 0),
						label,
						col("u_label_mcm7500", 2, identity),
						injected("u_hps_id"),
						injected("u_role_id"),
						injected("u_dp_id"),
						nms,
					),
					table(4300,
						col("pk", 0),
						label,
						col("u_label_m6100", 2, identity),
						injected("u_hps_id"),
						injected("u_role_id"),
						injected("u_dp_id"),
						nms,
					),
					chains(),
				),
			},
			{
				Name:        "Dialog Demodulator",
				TargetTable: "u_cmdb_ci_dialog_demodulator",
				Naming:      domain.NamingByCustomFunction,
				Attributes: table(3100,
					col("pk", 0),
					col("u_label", 4, identity),
					col("u_hps_id", 6),
					col("u_role_id", 7, monitored),
					col("u_dp_id", 9),
					nms,
				),
			},
			{
				Name:        "Dialog Switch",
				TargetTable: "cmdb_ci_ip_switch",
				Naming:      domain.NamingByCustomFunction,
				Attributes: attributes(
					table(5400,
						col("pk", 0),
						label,
						col("u_label_access", 2, identity),
						nms,
					),
					table(6450,
						col("pk", 0),
						label,
						col("u_label_rf", 2, identity),
						nms,
					),
					chains(),
				),
			},
			{
				Name:        "Dialog Enclosure",
				TargetTable: "cmdb_ci_enclosure",
				Naming:      domain.NamingByLabel,
				Attributes: table(3800,
					col("pk", 0),
					col("u_label", 1, identity),
					nms,
				),
			},
			{
				Name:        "Dialog Linux Server",
				TargetTable: "cmdb_ci_linux_server",
				Naming:      domain.NamingByCustomFunction,
				Attributes: attributes(
					table(13000,
						col("pk", 0),
						col("u_label", 4, identity),
						nms,
					),
					table(14400,
						col("pk", 0),
						col("u_function_id", 2),
						col("u_label", 4, identity),
						col("u_parent_blade_server", 5),
						nms,
						injected("u_hub_nms"),
					),
					table(14200,
						col("u_blade_server", 1),
						col("u_hub_name", 7, identity),
					),
				),
			},
			{
				Name:        "Dialog MS Server",
				TargetTable: "cmdb_ci_win_server",
				Naming:      domain.NamingByLabel,
				Attributes: table(4000,
					col("pk", 0),
					col("u_label", 2, identity),
					nms,
				),
			},
			{
				Name:        "Dialog Application",
				TargetTable: "u_cmdb_ci_dialog_application",
				Naming:      domain.NamingByLabel,
			},
		},
		Relationships: []domain.RelationshipRule{
			rule("Dialog Hub", "Dialog Modulator", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Hub", "Dialog Demodulator", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Hub", "Dialog Switch", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Hub", "Dialog Enclosure", LabelManagedBy, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Hub", "Dialog Linux Server", LabelDependsOn, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Hub", "Dialog MS Server", LabelDependsOn, true, link("u_nms_name", "u_nms_name")),
			rule("Dialog Demodulator", "Dialog Demodulator", LabelDRProvidedBy, true,
				link("u_hps_id", "u_hps_id"),
				link("u_dp_id", "u_dp_id"),
				link("u_role_id", "u_role_id"),
			),
			rule("Dialog Modulator", "Dialog Modulator", LabelDRProvidedBy, true,
				link("u_hps_id", "u_hps_id"),
				link("u_dp_id", "u_dp_id"),
				link("u_role_id", "u_role_id"),
			),
			rule("Dialog Modulator", "Dialog Switch", LabelUses, true, link("u_hps_chain", "u_hps_chain")),
			rule("Dialog Enclosure", "Dialog Linux Server", LabelLocatedIn, true, link("", "u_hub_name")),
		},
	}
}
