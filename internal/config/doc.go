// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional .env file is loaded into the process environment before expansion,
// so secrets such as database passwords can live outside the YAML file.
package config
