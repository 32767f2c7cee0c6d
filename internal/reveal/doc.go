// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reveal drives the typing animation for assistant messages.
//
// A reveal session shows a message's text one rune at a time and then its
// code in fixed-size chunks, patching the message store on every tick. When
// both phases finish a single final patch writes the complete text and code
// and clears the reveal flags, so the stored message always ends up equal to
// the source strings.
//
// Only one message is the reveal target at a time. Starting a new reveal
// stops the running one and finalizes its target before the new session
// begins:
//
//	ctrl := reveal.NewController(store, reveal.DefaultConfig())
//	defer ctrl.Close()
//
//	id := store.Append(model.NewPlaceholder(model.RoleAssistant))
//	<-ctrl.Reveal(id, "코드가 생성되었습니다.", code)
package reveal
