package tokens

// sampleCSV and sampleBinary hold the same 16 entries, including a tombstoned
// empty string at token 0.
const sampleCSV = `00000000,2019-06-10,""
141c35d5,          ,"The answer: ""%s"""
16fcc063,2020-01-01,"No arguments"
1cb2861a,          ,"hello(%i)"
2db1515f,          ,"%u%d%02x%X%hu%hhu%d%ld%lu%lld%llu%c%c%c"
2e668cd6,2019-06-11,"Jello, world!"
31631781,          ,"%d"
61fd1e26,          ,"%ld"
68ab92da,          ,"%s there are %x (%.2f) of them%c"
6bd542c0,          ,"%.3f"
7b940e2a,          ,"Hello %s! %hd %e"
851beeb6,          ,"%u %d"
881436a0,          ,"The answer is: %s"
b004a787,          ,"%08X %p"
e13b0f94,          ,"%llu"
e65aefef,2019-06-10,"Won't fit : %s%d"
`

const sampleBinary = "" +
	"\x54\x4f\x4b\x45\x4e\x53\x00\x00\x10\x00\x00\x00\x00\x00\x00\x00" +
	"\x00\x00\x00\x00\x0a\x06\xe3\x07\xd5\x35\x1c\x14\xff\xff\xff\xff" +
	"\x63\xc0\xfc\x16\x01\x01\xe4\x07\x1a\x86\xb2\x1c\xff\xff\xff\xff" +
	"\x5f\x51\xb1\x2d\xff\xff\xff\xff\xd6\x8c\x66\x2e\x0b\x06\xe3\x07" +
	"\x81\x17\x63\x31\xff\xff\xff\xff\x26\x1e\xfd\x61\xff\xff\xff\xff" +
	"\xda\x92\xab\x68\xff\xff\xff\xff\xc0\x42\xd5\x6b\xff\xff\xff\xff" +
	"\x2a\x0e\x94\x7b\xff\xff\xff\xff\xb6\xee\x1b\x85\xff\xff\xff\xff" +
	"\xa0\x36\x14\x88\xff\xff\xff\xff\x87\xa7\x04\xb0\xff\xff\xff\xff" +
	"\x94\x0f\x3b\xe1\xff\xff\xff\xff\xef\xef\x5a\xe6\x0a\x06\xe3\x07" +
	"\x00\x54\x68\x65\x20\x61\x6e\x73\x77\x65\x72\x3a\x20\x22\x25\x73" +
	"\x22\x00\x4e\x6f\x20\x61\x72\x67\x75\x6d\x65\x6e\x74\x73\x00\x68" +
	"\x65\x6c\x6c\x6f\x28\x25\x69\x29\x00\x25\x75\x25\x64\x25\x30\x32" +
	"\x78\x25\x58\x25\x68\x75\x25\x68\x68\x75\x25\x64\x25\x6c\x64\x25" +
	"\x6c\x75\x25\x6c\x6c\x64\x25\x6c\x6c\x75\x25\x63\x25\x63\x25\x63" +
	"\x00\x4a\x65\x6c\x6c\x6f\x2c\x20\x77\x6f\x72\x6c\x64\x21\x00\x25" +
	"\x64\x00\x25\x6c\x64\x00\x25\x73\x20\x74\x68\x65\x72\x65\x20\x61" +
	"\x72\x65\x20\x25\x78\x20\x28\x25\x2e\x32\x66\x29\x20\x6f\x66\x20" +
	"\x74\x68\x65\x6d\x25\x63\x00\x25\x2e\x33\x66\x00\x48\x65\x6c\x6c" +
	"\x6f\x20\x25\x73\x21\x20\x25\x68\x64\x20\x25\x65\x00\x25\x75\x20" +
	"\x25\x64\x00\x54\x68\x65\x20\x61\x6e\x73\x77\x65\x72\x20\x69\x73" +
	"\x3a\x20\x25\x73\x00\x25\x30\x38\x58\x20\x25\x70\x00\x25\x6c\x6c" +
	"\x75\x00\x57\x6f\x6e\x27\x74\x20\x66\x69\x74\x20\x3a\x20\x25\x73" +
	"\x25\x64\x00"
