package engine

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/stratus-io/stratus/internal/ir"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// resourceHeader is the statically checkable part of a resource block.
type resourceHeader struct {
	Type     string `validate:"required"`
	Name     string `validate:"required,hostname_rfc1123,max=63"`
	Provider string `validate:"required,alphanum"`
}

// ValidateConfig checks a configuration before planning:
//
//   - resource names and providers are well formed
//   - no two resources share an address (type, name)
//   - every dependsOn target and ref:// reference resolves to a declared
//     resource
//   - no ref:// reference targets a count/forEach resource, since such a
//     reference names a single value and must pick an instance
//
// All problems are reported at once via errors.Join.
func ValidateConfig(cfg *ir.Config) error {
	var errs []error

	declared := make(map[string]bool, len(cfg.Resources))
	multiInstance := make(map[string]bool)
	for _, res := range cfg.Resources {
		addr := res.Addr()
		if res.Count > 0 || len(res.ForEach) > 0 {
			multiInstance[addr] = true
		}
		if declared[addr] {
			errs = append(errs, fmt.Errorf("duplicate resource %s: resource identity (type, name) must be unique", addr))
		}
		declared[addr] = true

		hdr := resourceHeader{Type: res.Type, Name: res.Name, Provider: res.Provider}
		if hdr.Type == "" {
			hdr.Type = "null_resource"
		}
		if err := validate.Struct(hdr); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					errs = append(errs, fmt.Errorf("resource %s: invalid %s (failed %q rule)", addr, fe.Field(), fe.Tag()))
				}
			} else {
				errs = append(errs, fmt.Errorf("resource %s: %w", addr, err))
			}
		}
	}

	for _, res := range cfg.Resources {
		addr := res.Addr()
		for _, dep := range res.DependsOn {
			if !declared[dep] {
				errs = append(errs, fmt.Errorf("resource %s depends on undeclared resource %s", addr, dep))
			}
		}
		for _, ref := range ExtractRefs(res.Properties) {
			target := RefAddr(ref)
			if target == "" {
				errs = append(errs, fmt.Errorf("resource %s: malformed reference %q", addr, ref))
				continue
			}
			if target == addr {
				errs = append(errs, fmt.Errorf("resource %s references itself", addr))
				continue
			}
			if !declared[target] {
				errs = append(errs, fmt.Errorf("resource %s references undeclared resource %s (via %q)", addr, target, ref))
				continue
			}
			if multiInstance[target] {
				errs = append(errs, fmt.Errorf("resource %s references %s, which expands to multiple instances; reference a specific instance such as %s-0", addr, target, target))
			}
		}
	}

	return errors.Join(errs...)
}
