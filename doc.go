// Copyright (c) 2020–2024 The eis developers. All rights reserved.
// Project site: https://github.com/gotmc/eis
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

// Package eis sequences an electrochemical impedance spectroscopy sweep on an
// LCR meter: it plans a logarithmic set of frequencies, programs the meter at
// each one, converts the polar reading into rectangular impedance and streams
// every sample to a Sink in measurement order.
//
// The instrument is reached through the Meter interface; the GPIB transport
// and the HP 4284A command set live in lib/prologix and lib/hp4284a.
package eis
