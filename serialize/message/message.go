package message

// commands of the messages used by the crawler
const (
	CmdVersion = "version"
	CmdVerack  = "verack"
	CmdGetAddr = "getaddr"
	CmdAddr    = "addr"
	CmdPing    = "ping"
	CmdPong    = "pong"
)

/*
Envelope
+-------+-----------+--------+----------+-----------+
| Magic |  Command  | Length | Checksum |  Payload  |
+-------+-----------+--------+----------+-----------+
(bytes)
Magic       4   little endian
Command     12  ascii, zero padded
Length      4   little endian
Checksum    4   first 4 bytes of sha256(sha256(payload))
Payload     Length


NetAddress
+----------+------+------+
| Services |  IP  | Port |
+----------+------+------+
(bytes)
Services    8   little endian
IP          16  IPv4 is IPv4-mapped IPv6
Port        2   big endian


Address record (addr payload item)
+-----------+----------------+
| Timestamp |  (NetAddress)  |
+-----------+----------------+
(bytes)
Timestamp   4   little endian


Version
+---------+----------+-----------+----------------+----------------+
| Version | Services | Timestamp | (NetAddr recv) | (NetAddr from) |
+---------+----------+-----------+----------------+----------------+
|  Nonce  |  UA len  | UserAgent |     Height     |     Relay      |
+---------+----------+-----------+----------------+----------------+
(bytes)
Version     4   little endian, signed
Services    8   little endian
Timestamp   8   little endian, signed
Nonce       8   little endian
UA len      varint
UserAgent   UA len
Height      4   little endian, signed
Relay       1


Addr
+---------+-------------------------------+
|  Count  |  Records:(Address record)     |
+---------+-------------------------------+
(bytes)
Count       varint
Records     30 * Count


Ping/Pong
+---------+
|  Nonce  |
+---------+
(bytes)
Nonce       8   little endian
*/
