// Package hcl provides the HCL implementation of config.Loader. A path may
// name a single .hcl file or a directory; every .hcl file under a directory
// is parsed and merged into one config.Model.
package hcl
