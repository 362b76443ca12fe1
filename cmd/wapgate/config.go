/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/Comcast/wapgate/appl"
	"github.com/Comcast/wapgate/convert"
	"github.com/Comcast/wapgate/dlr"
	"github.com/Comcast/wapgate/urlmap"
	"github.com/Comcast/wapgate/wml"
	"github.com/Comcast/wapgate/wmlscript"

	"github.com/jsccast/yaml"
)

// Conf is the gateway's YAML configuration.
type Conf struct {
	GatewayName string `yaml:"gateway-name"`
	Hostname    string `yaml:"hostname"`
	SmartErrors bool   `yaml:"smart-errors"`
	DeviceHome  string `yaml:"device-home"`
	QueueSize   int    `yaml:"queue-size"`

	// MapURLs are rewrite directives, each "src dst".
	MapURLs          []string `yaml:"map-url"`
	MapURLDeviceHome string   `yaml:"map-url-device-home"`

	// WMLScript enables the WMLScript compiler (on by default).
	WMLScript bool `yaml:"wmlscript"`

	// PushClients are client addresses the push gateway owns
	// sessions for.
	PushClients []string `yaml:"push-clients"`

	DLR DLRConf `yaml:"dlr"`

	// DLRReportCron schedules a pending-report count in the log.
	DLRReportCron string `yaml:"dlr-report-cron"`
}

// DLRConf selects and configures the delivery report storage.
type DLRConf struct {
	// Backend is "bolt", "sql", or "" for none.
	Backend string `yaml:"backend"`

	// File is the Bolt filename.
	File string `yaml:"file"`

	// Driver and DSN configure the sql backend.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	Table   string `yaml:"table"`
	Dialect string `yaml:"dialect"`

	FieldSMSC        string `yaml:"field-smsc"`
	FieldTimestamp   string `yaml:"field-ts"`
	FieldSource      string `yaml:"field-src"`
	FieldDestination string `yaml:"field-dst"`
	FieldService     string `yaml:"field-service"`
	FieldURL         string `yaml:"field-url"`
	FieldBoxID       string `yaml:"field-boxc"`
	FieldMask        string `yaml:"field-mask"`
	FieldStatus      string `yaml:"field-status"`
}

// ReadConf loads the configuration file.  A missing filename gives
// the defaults.
func ReadConf(filename string) (*Conf, error) {
	conf := &Conf{
		GatewayName: "WAPGate/1.4",
		WMLScript:   true,
	}
	if conf.Hostname, _ = os.Hostname(); conf.Hostname == "" {
		conf.Hostname = "localhost"
	}

	if filename == "" {
		return conf, nil
	}

	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(bs, conf); err != nil {
		return nil, fmt.Errorf("config %s: %v", filename, err)
	}
	return conf, nil
}

// Converters builds the content conversion registry: WML to WBXML,
// and (unless disabled) WMLScript to bytecode.
func (conf *Conf) Converters() *convert.Registry {
	entries := []convert.Entry{
		{
			Type:       wml.MediaType,
			ResultType: wml.CompiledType,
			Convert: func(c *convert.Content) ([]byte, error) {
				return wml.Compile(c.Body, c.Charset)
			},
		},
	}
	if conf.WMLScript {
		entries = append(entries, convert.Entry{
			Type:       wmlscript.MediaType,
			ResultType: wmlscript.CompiledType,
			Convert: func(c *convert.Content) ([]byte, error) {
				return wmlscript.Compile(c.URL, c.Body)
			},
		})
	}
	return convert.NewRegistry(entries...)
}

// URLMap builds the rewrite table from the map-url directives.
func (conf *Conf) URLMap() (*urlmap.Table, error) {
	t := urlmap.NewTable()
	for _, directive := range conf.MapURLs {
		if err := t.Config(directive); err != nil {
			return nil, err
		}
	}
	if conf.MapURLDeviceHome != "" {
		if err := t.ConfigDeviceHome(conf.MapURLDeviceHome); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// DLRStorage opens the configured delivery report storage, or returns
// nil when none is configured.
func (conf *Conf) DLRStorage(ctx context.Context) (dlr.Storage, error) {
	c := conf.DLR
	switch c.Backend {
	case "":
		return nil, nil
	case "bolt":
		if c.File == "" {
			c.File = "dlr.db"
		}
		s, err := dlr.NewBoltStorage(c.File)
		if err != nil {
			return nil, err
		}
		if err := s.Open(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "sql":
		if c.Driver == "" {
			c.Driver = "sqlite3"
		}
		db, err := sql.Open(c.Driver, c.DSN)
		if err != nil {
			return nil, err
		}
		s := dlr.NewSQLStorage(db, dlr.SQLConfig{
			Table:            c.Table,
			Dialect:          c.Dialect,
			FieldSMSC:        c.FieldSMSC,
			FieldTimestamp:   c.FieldTimestamp,
			FieldSource:      c.FieldSource,
			FieldDestination: c.FieldDestination,
			FieldService:     c.FieldService,
			FieldURL:         c.FieldURL,
			FieldBoxID:       c.FieldBoxID,
			FieldMask:        c.FieldMask,
			FieldStatus:      c.FieldStatus,
		})
		if err := s.EnsureTable(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown dlr backend %q", c.Backend)
	}
}

// ApplConfig maps the configuration onto the application layer's.
func (conf *Conf) ApplConfig(verbose bool) appl.Config {
	return appl.Config{
		GatewayName: conf.GatewayName,
		Hostname:    conf.Hostname,
		SmartErrors: conf.SmartErrors,
		DeviceHome:  conf.DeviceHome,
		QueueSize:   conf.QueueSize,
		Verbose:     verbose,
	}
}
