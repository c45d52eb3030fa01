package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func newInspectCommand(flags *globalFlags) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "inspect [entity-type]",
		Short: "Show the finalized model",
		Long: `Show the entity types of the finalized model, or the properties, keys and
relationships of a single entity type. --debug prints the model's debug view.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, flags)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			m, err := e.loadModel()
			if err != nil {
				return err
			}
			if debug {
				fmt.Fprint(e.out, m.ToDebugString())
				return nil
			}
			if len(args) == 0 {
				renderModel(e, m)
				return nil
			}

			et := m.FindEntityType(args[0])
			if et == nil {
				names := make([]string, 0, len(m.GetEntityTypes()))
				for _, t := range m.GetEntityTypes() {
					names = append(names, t.Name())
				}
				ui.WriteProblem(e.out, ui.Problem{
					Context:     "unknown entity type",
					Message:     args[0],
					Detail:      fmt.Sprintf("The model has no entity type named '%s'.", args[0]),
					Suggestions: ui.Suggest(args[0], names),
					Hints:       []string{"entitycore inspect lists every entity type"},
				}, e.noColor)
				return errReported
			}
			renderEntityType(e, et)
			return nil
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "print the model debug view")
	return cmd
}

func renderModel(e *env, m *schema.Model) {
	ui.Section(e.out, fmt.Sprintf("Model %s (product version %s)", e.cfg.Model.Name, m.ProductVersion()), e.noColor)

	table := ui.NewTable(e.out, e.noColor, "ENTITY TYPE", "BASE", "KEY", "PROPERTIES", "NAVIGATIONS", "FLAGS")
	for _, et := range m.GetEntityTypes() {
		key := "-"
		if pk := et.FindPrimaryKey(); pk != nil {
			key = pk.String()
		}
		table.AddRow(
			et.Name(),
			baseName(et),
			key,
			fmt.Sprint(len(et.GetProperties())),
			fmt.Sprint(len(et.GetNavigations())+len(et.GetDeclaredSkipNavigations())),
			entityFlags(et),
		)
	}
	table.Render()
}

func renderEntityType(e *env, et *schema.EntityType) {
	ui.Section(e.out, "Entity type "+et.Name(), e.noColor)

	kv := ui.NewKeyValues(e.out, e.noColor)
	kv.Add("Base type", baseName(et))
	kv.Add("Root type", et.RootType().Name())
	kv.Add("Change tracking", et.GetChangeTrackingStrategy().String())
	if p := et.GetDiscriminatorProperty(); p != nil {
		kv.Add("Discriminator", fmt.Sprintf("%s = %v", p.Name(), et.GetDiscriminatorValue()))
	}
	if s := et.GetMappingStrategy(); s != "" {
		kv.Add("Mapping strategy", s)
	}
	if flags := entityFlags(et); flags != "" {
		kv.Add("Flags", flags)
	}
	kv.Render()
	fmt.Fprintln(e.out)

	props := ui.NewTable(e.out, e.noColor, "PROPERTY", "TYPE", "NULLABLE", "GENERATED", "FLAGS")
	for _, p := range et.GetProperties() {
		props.AddRow(p.Name(), p.Type().String(), yesNo(p.IsNullable()), p.ValueGenerated().String(), propertyFlags(p))
	}
	props.Render()

	keys := ui.NewTable(e.out, e.noColor, "KEY", "PRIMARY")
	for _, k := range et.GetKeys() {
		keys.AddRow(k.String(), yesNo(k.IsPrimaryKey()))
	}
	if keys.Len() > 0 {
		fmt.Fprintln(e.out)
		keys.Render()
	}

	fks := ui.NewTable(e.out, e.noColor, "FOREIGN KEY", "PRINCIPAL", "PRINCIPAL KEY", "REQUIRED", "ON DELETE", "NAVIGATIONS")
	for _, fk := range et.GetForeignKeys() {
		var navs []string
		if n := fk.DependentToPrincipal(); n != nil {
			navs = append(navs, n.Name())
		}
		if n := fk.PrincipalToDependent(); n != nil {
			navs = append(navs, fk.PrincipalEntityType().Name()+"."+n.Name())
		}
		fks.AddRow(
			schema.FormatProperties(fk.Properties()),
			fk.PrincipalEntityType().Name(),
			fk.PrincipalKey().String(),
			yesNo(fk.IsRequired()),
			fk.DeleteBehavior().String(),
			strings.Join(navs, ", "),
		)
	}
	if fks.Len() > 0 {
		fmt.Fprintln(e.out)
		fks.Render()
	}

	skips := ui.NewTable(e.out, e.noColor, "SKIP NAVIGATION", "TARGET", "INVERSE")
	for _, s := range et.GetDeclaredSkipNavigations() {
		inverse := "-"
		if inv := s.Inverse(); inv != nil {
			inverse = inv.Name()
		}
		skips.AddRow(s.Name(), s.TargetEntityType().Name(), inverse)
	}
	if skips.Len() > 0 {
		fmt.Fprintln(e.out)
		skips.Render()
	}
}

func baseName(et *schema.EntityType) string {
	if base := et.BaseType(); base != nil {
		return base.Name()
	}
	return "-"
}

func entityFlags(et *schema.EntityType) string {
	var flags []string
	if et.IsShadow() {
		flags = append(flags, "shadow")
	}
	if et.IsPropertyBag() {
		flags = append(flags, "property-bag")
	}
	if et.IsAbstract() {
		flags = append(flags, "abstract")
	}
	if et.IsOwned() {
		flags = append(flags, "owned")
	}
	if et.IsKeyless() {
		flags = append(flags, "keyless")
	}
	return strings.Join(flags, ",")
}

func propertyFlags(p *schema.Property) string {
	var flags []string
	if p.IsPrimaryKey() {
		flags = append(flags, "pk")
	} else if p.IsKey() {
		flags = append(flags, "ak")
	}
	if p.IsForeignKey() {
		flags = append(flags, "fk")
	}
	if p.IsShadowProperty() {
		flags = append(flags, "shadow")
	}
	if p.IsConcurrencyToken() {
		flags = append(flags, "concurrency")
	}
	if n := p.MaxLength(); n != nil {
		flags = append(flags, fmt.Sprintf("max=%d", *n))
	}
	return strings.Join(flags, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
