// README: Identifier type shared across modules.
package types

type ID string
