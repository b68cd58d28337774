package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/valvectl/internal/gpio"
	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/database"
	"github.com/nerrad567/valvectl/internal/infrastructure/influxdb"
	"github.com/nerrad567/valvectl/internal/infrastructure/logging"
	"github.com/nerrad567/valvectl/internal/infrastructure/mqtt"
	"github.com/nerrad567/valvectl/internal/operation"
	"github.com/nerrad567/valvectl/internal/telemetry"
	"github.com/nerrad567/valvectl/migrations"
)

// stackOptions selects what openStack must provide.
type stackOptions struct {
	// requireHistory turns a database failure into an error instead of a warning.
	requireHistory bool
}

// stack holds the infrastructure shared by run and serve. Every member except
// driver is optional and nil when disabled or unavailable.
type stack struct {
	log    *logging.Logger
	db     *database.DB
	repo   history.Repository
	mqtt   *mqtt.Client
	influx *influxdb.Client
	driver gpio.Driver

	closers []func()
}

// openStack connects the configured infrastructure and opens the GPIO driver.
//
// A run must be able to water the garden with only the GPIO driver, so
// MQTT and InfluxDB failures are logged and skipped unless the driver
// itself needs MQTT.
func openStack(ctx context.Context, cfg *config.Config, log *logging.Logger, opts stackOptions) (_ *stack, err error) {
	st := &stack{log: log}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	if cfg.Database.Enabled {
		if dbErr := st.openHistory(ctx, cfg.Database); dbErr != nil {
			if opts.requireHistory {
				return nil, dbErr
			}
			log.Warn("operation history disabled", "error", dbErr)
		}
	}

	if cfg.MQTT.Enabled {
		client, mqttErr := mqtt.Connect(cfg.MQTT)
		switch {
		case mqttErr == nil:
			client.SetLogger(log)
			client.SetOnConnect(func() { log.Info("MQTT reconnected") })
			client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
			st.mqtt = client
			st.closers = append(st.closers, func() {
				log.Info("disconnecting from MQTT")
				if closeErr := client.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			})
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		case cfg.GPIO.Driver == config.DriverMQTT:
			return nil, fmt.Errorf("connecting to MQTT: %w", mqttErr)
		default:
			log.Warn("MQTT telemetry disabled", "error", mqttErr)
		}
	}

	if cfg.InfluxDB.Enabled {
		client, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			log.Warn("InfluxDB telemetry disabled", "error", influxErr)
		} else {
			client.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			st.influx = client
			st.closers = append(st.closers, func() {
				log.Info("closing InfluxDB connection")
				if closeErr := client.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			})
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	driver, err := gpio.Open(cfg.GPIO, st.publisher(), cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated 0-2
	if err != nil {
		return nil, fmt.Errorf("opening GPIO driver: %w", err)
	}
	st.driver = driver
	st.closers = append(st.closers, func() {
		if closeErr := driver.Close(); closeErr != nil {
			log.Error("error closing GPIO driver", "error", closeErr)
		}
	})
	log.Debug("GPIO driver opened", "driver", cfg.GPIO.Driver, "active_low", cfg.GPIO.ActiveLow)

	return st, nil
}

func (st *stack) openHistory(ctx context.Context, cfg config.DatabaseConfig) error {
	db, err := database.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	st.db = db
	st.repo = history.NewSQLiteRepository(db.DB)
	st.closers = append(st.closers, func() {
		st.log.Debug("closing database")
		if closeErr := db.Close(); closeErr != nil {
			st.log.Error("error closing database", "error", closeErr)
		}
	})
	st.log.Debug("database connected", "path", cfg.Path)
	return nil
}

// publisher returns the MQTT client as a gpio.Publisher, or a nil interface.
func (st *stack) publisher() gpio.Publisher {
	if st.mqtt == nil {
		return nil
	}
	return st.mqtt
}

// summaries returns the InfluxDB client as a SummaryWriter, or a nil interface.
func (st *stack) summaries() operation.SummaryWriter {
	if st.influx == nil {
		return nil
	}
	return st.influx
}

// observer combines the telemetry observers with extra, or returns nil when
// there is nothing to observe.
func (st *stack) observer(extra ...history.Observer) history.Observer {
	var fan telemetry.Fanout
	if st.influx != nil {
		fan = append(fan, telemetry.NewInfluxObserver(st.influx))
	}
	if st.mqtt != nil {
		fan = append(fan, telemetry.NewMQTTObserver(st.mqtt, st.mqtt.Topics(), st.mqtt.QoS(), st.log))
	}
	fan = append(fan, extra...)
	if len(fan) == 0 {
		return nil
	}
	return fan
}

// listenForStop lets a message on the MQTT stop topic stop m's active
// operation. Without MQTT it does nothing. Failure to subscribe is logged:
// SIGTERM and the HTTP API still stop the run.
func (st *stack) listenForStop(m *operation.Manager) {
	if st.mqtt == nil {
		return
	}
	rs, err := operation.ListenForStop(m, st.mqtt, st.mqtt.Topics().StopCommand(), st.mqtt.QoS(), st.log)
	if err != nil {
		st.log.Warn("remote stop disabled", "error", err)
		return
	}
	st.closers = append(st.closers, func() {
		if closeErr := rs.Close(); closeErr != nil {
			st.log.Debug("unsubscribing from stop topic failed", "error", closeErr)
		}
	})
}

// healthCheck verifies every connected dependency.
func (st *stack) healthCheck(ctx context.Context) error {
	var errs []error
	if st.db != nil {
		if err := st.db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if st.mqtt != nil {
		if err := st.mqtt.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if st.influx != nil {
		if err := st.influx.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases everything in reverse order of opening.
func (st *stack) Close() {
	for i := len(st.closers) - 1; i >= 0; i-- {
		st.closers[i]()
	}
	st.closers = nil
}
