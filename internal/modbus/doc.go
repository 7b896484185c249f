// Package modbus is a single-instrument Modbus RTU master.
//
// It wraps github.com/goburrow/modbus with the behaviour the acquisition
// loop relies on:
//
//   - ReadRegisters returns exactly count uint16 values or an error
//   - errors are classified into ErrNoResponse, ErrProtocol and
//     ErrTransport so callers can apply a per-kind policy with errors.Is
//   - one transaction at a time: the serial line is half-duplex, so
//     concurrent callers are serialised, never interleaved
//   - no internal retries; retry policy belongs to the caller
//
// # Usage
//
//	client, err := modbus.Connect(modbus.Config{
//	    Port:         "/dev/ttyUSB0",
//	    SlaveAddress: 1,
//	    Timeout:      time.Second,
//	})
//	if err != nil {
//	    return err // wraps modbus.ErrConnection
//	}
//	defer client.Close()
//
//	values, err := client.ReadRegisters(ctx, 0, 27, modbus.ReadInputRegisters)
//	switch {
//	case errors.Is(err, modbus.ErrNoResponse):
//	    // device silent, try again next cycle
//	case err != nil:
//	    // protocol or transport fault
//	}
//
// # Serial Parameters
//
// Defaults match the instruments in the field: 9600 baud, 8 data bits,
// no parity, 1 stop bit.
package modbus
