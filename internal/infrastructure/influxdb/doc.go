// Package influxdb provides InfluxDB connectivity for solarlog.
//
// It wraps the official influxdb-client-go v2 library and exposes writers for
// the two measurements solarlog produces:
//
//	modbus_registers,instrument=inverter r0=0i,r1=2301i,...
//	solar_metrics,instrument=inverter pv_voltage=52.3,pv_power=410,...
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRegisters("inverter", rec.Start(), rec.Values(), rec.Timestamp)
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); failures
// are delivered to the SetOnError callback. Connection and health check
// errors are returned directly.
package influxdb
