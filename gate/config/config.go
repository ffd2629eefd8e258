// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package config parses key=value configuration files such as bitcoin.conf
// into tagged structs.
package config

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// Data generates ini config data from a settings map. Keys are sorted so the
// output is stable.
func Data(settings map[string]string) []byte {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, settings[k])
	}
	return buf.Bytes()
}

// Options returns all key-value options in the provided config file path or
// []byte data, flattening any sections.
func Options(cfgPathOrData interface{}) (map[string]string, error) {
	cfgFile, err := load(cfgPathOrData)
	if err != nil {
		return nil, err
	}
	return options(cfgFile), nil
}

func options(cfgFile *ini.File) map[string]string {
	opts := make(map[string]string)
	for _, section := range cfgFile.Sections() {
		for _, key := range section.Keys() {
			opts[key.Name()] = key.String()
		}
	}
	return opts
}

func load(cfgPathOrData interface{}) (*ini.File, error) {
	return ini.LoadSources(ini.LoadOptions{
		Insensitive:         false,
		AllowBooleanKeys:    true,
		IgnoreInlineComment: false,
	}, cfgPathOrData)
}

// ParseInto parses config options from the provided config file path or
// []byte data into the specified struct object. Options in named sections,
// e.g. bitcoin.conf's [main] or [test], are flattened into the default section
// before mapping, with section values taking precedence.
func ParseInto(cfgPathOrData, obj interface{}) error {
	cfgFile, err := load(cfgPathOrData)
	if err != nil {
		return err
	}

	sections := cfgFile.Sections()
	if len(sections) > 1 || sections[0].Name() != ini.DefaultSection {
		cfgFile, err = load(Data(options(cfgFile)))
		if err != nil {
			return err
		}
	}

	return cfgFile.MapTo(obj)
}

// Unmapify parses a settings map into the specified struct object.
func Unmapify(settings map[string]string, obj interface{}) error {
	return ParseInto(Data(settings), obj)
}
