/*
Package emv implements a contact EMV payment kernel: PSE/AID selection, GET
PROCESSING OPTIONS, AFL-driven record reading, offline Dynamic Data
Authentication, offline PIN verification (plaintext and enciphered), and
GENERATE AC.

This package is transport-agnostic. A Session is driven by a Transport
function that exchanges one raw APDU for one raw response; callers supply
their own (PC/SC, a simulator, a test fake). See transport/pcsc for a
PC/SC-backed implementation.

# Tag Store

Every response this kernel receives, from every command, is parsed as
BER-TLV and has its primitive (non-constructed) leaf tags absorbed into a
per-session tag store automatically — not just the templates a particular
step is looking for. A later step that needs a tag another step's response
happened to carry (the PAN read during SELECT, say) finds it already
present. Tag "80" is never stored this way: it is EMV's one common
non-conforming response format, a primitive tag whose value is a fixed-
position concatenation of fields rather than nested TLV, and every command
that can return it is handled by hand.

# Selection

	Command:  00 A4 04 00 <len> 1PAY.SYS.DDF01
	Response: FCI carrying 88 <SFI of the directory file>

The directory records are then read from that SFI, index 1 upwards, until
a read fails:

	Command:  00 B2 <index> <SFI<<3|04> 00
	Response: 70 <directory entries, each 61 { 4F AID, 50 label, 87 priority }>

Applications without a priority byte (tag 87) are not selectable by this
kernel and are dropped during enumeration.

	Command:  00 A4 04 00 <len> <AID>
	Response: FCI (absorbed into the tag store; only SW matters here)

# Get Processing Options

	Command:  80 A8 00 00 02 83 00
	Response (template 80): 80 <len> <AIP(2)> <AFL(n)>
	Response (template 77): 77 <len> { 82 AIP, 94 AFL, ... }

The AFL (tag 94) is a sequence of 4-byte groups: SFI, first record, last
record, number of records involved in offline data authentication. Each
named record is read with READ RECORD:

	Command:  00 B2 <index> <SFI<<3|04> 00
	Response: 70 <record fields>

A record's authentication-hash contribution is only counted if the read
that produced it succeeded; skipping it on failure never retries the read.

# Certificate Recovery

Issuer and ICC public keys are recovered from their certificates (tags 90
and 9F46) by raw RSA exponentiation under the CA key and the issuer key
respectively (EMV Book 2 §6.3-6.4): no padding scheme, the recovered
plaintext's own structure is the only envelope. Expiry is carried in the
certificate as BCD-packed MMYY and is logged, not rejected, when more than
30 days past.

# PIN Verification

Plaintext:

	Command:  00 20 00 80 08 <control|len> <PIN BCD(6)> FF

Enciphered: GET CHALLENGE for the ICC's unpredictable number, then the PIN
block plus that number plus random padding is RSA-encrypted under the
ICC's PIN public key and sent as:

	Command:  00 20 00 88 <len> <ciphertext>

# Dynamic Data Authentication

	Command:  00 88 00 00 <len> <DDOL data> 00
	Response: signed dynamic application data (tag 9F4B), recovered under
	          the ICC public key and checked against a DDOL-driven SHA-1.

# Generate Application Cryptogram

	Command:  80 AE 40 00 <len> <CDOL data> 00

P1 is always 0x40 (TC, proceed offline); this kernel never requests an
online ARQC or a hard-decline AAC.
*/
package emv
