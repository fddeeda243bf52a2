// kerimesh - KERI identity and group-chat consensus engine
// Copyright (C) 2025 kerimesh contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package identity

import "errors"

// ErrInvalidSignature is the low-level cryptographic-primitive sentinel.
// VerifyWithPublicKey returns it as is; the Manager reports a bundle that
// fails to open as a kerierr.InvalidSignature wrapping it.
var ErrInvalidSignature = errors.New("identity: invalid signature")
