// Package reconng drives the Recon-ng framework against the profile's primary
// lead and turns the resulting workspace database into correlated
// intelligence.
//
// The module needs the recon-ng executable on $PATH (or the path given by the
// "binary" setting). Each run:
//   - selects or creates a workspace named after the seed target,
//   - seeds the target into the domains, companies or contacts table,
//   - runs the requested recon-ng modules through generated resource scripts,
//   - reads the workspace's data.db and writes intelligence.reconng.
//
// The workspace name, target type and target value are derived by Prepare
// from the profile snapshot before the module is constructed.
package reconng
