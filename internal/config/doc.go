// Package config holds configuration for the torgate boundary.
//
// Configuration is loaded once at Init time, either as defaults or from
// a YAML/TOML file, and then passed by value into the gateway. There is
// no runtime reloading: the boundary's session is initialized exactly
// once per process.
package config
