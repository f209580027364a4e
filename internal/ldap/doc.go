/*
Package ldap implements the directory client layer for ldapgate.

The package wraps go-ldap with the small, typed surface the
authentication and synchronization cores need:

  - EndpointConfig: one configured directory endpoint (dialect, address,
    base DN, account prefix/suffix, bind credentials)
  - Conn: a bound session to one endpoint, exposing search and mutation
    operations plus user bind attempts
  - Pool: the set of sessions a deployment owns: the primary endpoint,
    one session per alternate organizational unit, and the secondary
    (sync target) endpoint
  - Record: a remote user entry with a typed attribute map over a closed
    set of well-known attribute names

# Dialects

Two schema dialects are supported, ActiveDirectory and OpenLDAP. The
dialect decides the object classes written on entry creation, how a
record is recognized as a user entry, and how an alternate
organizational unit rewrites the endpoint configuration (OpenLDAP
rewrites the account suffix, Active Directory the base DN).

# Account prefix rediscovery

Credential verification sometimes has to re-bind with an account prefix
discovered from a matched record's RDN. Conn models this as a state
transition: WithAccountPrefix returns a new bound session carrying the
adjusted configuration and never mutates the receiver, so the original
session's configuration is the same before and after every discovery
attempt. Discovery sessions are serialized per connection.

# Error handling

Operations return *DirectoryError carrying the operation name, an error
category, the LDAP result code and a retryable classification. Search
outcomes that callers branch on are the sentinels ErrNotFound (no
match), ErrMultipleMatches (ambiguous match) and ErrUnexpectedEntryType
(non-user entry).
*/
package ldap
