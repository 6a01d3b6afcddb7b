package melsec

// InitDefaults installs the embedded baseline command registry, device
// catalog, and error catalog as the process-wide globals, tolerating a
// registry that another call path already installed. Grounded on
// melsec_mc_core's lib.rs::init_defaults: the command registry and device
// catalog swallow ErrAlreadyRegistered (single-set lifecycle), while the
// error catalog always merges, since it alone supports layered overlays.
func InitDefaults() error {
	commands, err := DefaultCommandRegistry()
	if err != nil {
		return err
	}
	if err := SetGlobalCommandRegistry(commands); err != nil && !IsKind(err, KindAlreadyRegistered) {
		return err
	}

	devices, err := DefaultDeviceCatalog()
	if err != nil {
		return err
	}
	if err := SetGlobalDeviceCatalog(devices); err != nil && !IsKind(err, KindAlreadyRegistered) {
		return err
	}

	errs, err := DefaultErrorCatalog()
	if err != nil {
		return err
	}
	RegisterOrMergeErrorCatalog(errs)
	return nil
}
