/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config loads a Port's settings from a viper source under the
// "parcel.<handler-name>" namespace, validates them with struct tags, and
// can re-validate on every on-disk change via fsnotify.
package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	libval "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	liberr "github.com/hpcparcel/transport/errors"
)

// Endian selects the wire byte order the encoder should declare; the CBOR
// encoder this module ships does not need it, but handlers that speak a
// fixed-width wire format do.
type Endian string

const (
	EndianLittle Endian = "little"
	EndianBig    Endian = "big"
)

// HandlerConfig is the per-handler "parcel.<handler-name>" block.
type HandlerConfig struct {
	IOPoolSize                int `mapstructure:"io_pool_size" validate:"gte=1"`
	MaxConnections            int `mapstructure:"max_connections" validate:"gte=0"`
	MaxConnectionsPerLocality int `mapstructure:"max_connections_per_locality" validate:"gte=0"`
}

// Config is the full parcel.* namespace: one top-level block plus one
// HandlerConfig per registered handler name.
type Config struct {
	EndianOut            Endian `mapstructure:"endian_out" validate:"oneof=little big"`
	MaxBackgroundThreads int    `mapstructure:"max_background_threads" validate:"gte=1"`

	Handlers map[string]HandlerConfig `mapstructure:"-"`
}

// Validate runs struct-tag validation over Config plus every handler block,
// then the cross-field rule no single struct tag can express: a set
// max_connections_per_locality must not exceed a set max_connections.
func (c *Config) Validate() liberr.Error {
	err := ErrorValidatorFailed.Error(nil)
	v := libval.New()

	if e := v.Struct(c); e != nil {
		collectValidationErrors(err, e)
	}

	for name, h := range c.Handlers {
		if e := v.Struct(h); e != nil {
			collectValidationErrors(err, e)
		}
		if h.MaxConnections > 0 && h.MaxConnectionsPerLocality > h.MaxConnections {
			err.Add(fmt.Errorf("handler %q: max_connections_per_locality (%d) exceeds max_connections (%d)", name, h.MaxConnectionsPerLocality, h.MaxConnections))
		}
	}

	if err.HasParent() {
		return err
	}
	return nil
}

func collectValidationErrors(err liberr.Error, e error) {
	if ive, ok := e.(*libval.InvalidValidationError); ok {
		err.Add(ive)
		return
	}
	for _, fe := range e.(libval.ValidationErrors) {
		err.Add(fmt.Errorf("config field '%s' fails constraint '%s'", fe.StructNamespace(), fe.ActualTag()))
	}
}

// Loader wraps a *viper.Viper bound to the "parcel" root key, with optional
// fsnotify-driven hot reload.
type Loader struct {
	v        *viper.Viper
	handlers []string
}

// New returns a Loader reading "parcel" from v, tracking the named handler
// blocks "parcel.<name>" for each entry in handlerNames.
func New(v *viper.Viper, handlerNames ...string) *Loader {
	v.SetDefault("parcel.endian_out", string(EndianLittle))
	v.SetDefault("parcel.max_background_threads", 1)
	for _, name := range handlerNames {
		v.SetDefault("parcel."+name+".io_pool_size", 2)
	}
	return &Loader{v: v, handlers: handlerNames}
}

// Load unmarshals and validates the current configuration.
func (l *Loader) Load() (*Config, error) {
	var c Config
	if err := l.v.UnmarshalKey("parcel", &c); err != nil {
		return nil, ErrorUnmarshalFailed.Error(liberr.New(0, err.Error()))
	}

	c.Handlers = make(map[string]HandlerConfig, len(l.handlers))
	for _, name := range l.handlers {
		var h HandlerConfig
		if err := l.v.UnmarshalKey("parcel."+name, &h); err != nil {
			return nil, ErrorUnmarshalFailed.Error(liberr.New(0, err.Error()))
		}
		c.Handlers[name] = h
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Watch enables fsnotify-driven hot reload: onChange is invoked with a
// freshly loaded, validated Config every time the backing file changes.
// Reload failures (an edit that fails validation mid-save) are swallowed
// rather than propagated - the previous Config returned by Load stays in
// effect until a valid file reappears.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		if c, err := l.Load(); err == nil {
			onChange(c)
		}
	})
	l.v.WatchConfig()
}
